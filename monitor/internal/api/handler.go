package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/obsidianstack/pulsewatch/monitor/internal/history"
	"github.com/obsidianstack/pulsewatch/monitor/internal/status"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

// Query limits for the history endpoint.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000

	uptimeWindow = 24 * time.Hour
)

// History reads stored results.
type History interface {
	Recent(ctx context.Context, checkID string, limit int) ([]history.Record, error)
	Uptime(ctx context.Context, checkID string, since time.Time) (float64, int, error)
}

// Logs lists log and artifact ids.
type Logs interface {
	List(ctx context.Context, includeCompressed bool) ([]string, error)
}

// Deps are the handler's collaborators. Only Status is required.
type Deps struct {
	Status  *status.Store
	History History
	Logs    Logs

	// Stream, when set, is mounted at /api/v1/stream.
	Stream http.Handler

	// Auth, when set, wraps every /api/v1 route.
	Auth func(http.Handler) http.Handler
}

// Handler serves the status API.
type Handler struct {
	deps   Deps
	router chi.Router
}

// New creates a Handler and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, router: chi.NewRouter()}

	h.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	h.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	h.router.Get("/metrics", h.metrics)

	h.router.Route("/api/v1", func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth)
		}
		r.Get("/health", h.health)
		r.Get("/snapshot", h.snapshot)
		r.Get("/logs", h.logs)
		r.Route("/checks", func(r chi.Router) {
			r.Get("/", h.listChecks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getCheck)
				r.Get("/history", h.checkHistory)
			})
		})
		if deps.Stream != nil {
			r.Get("/stream", deps.Stream.ServeHTTP)
		}
	})

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	entries := h.deps.Status.List()
	resp := HealthResponse{CheckCount: len(entries)}

	if len(entries) == 0 {
		resp.State = string(types.StateUnknown)
		jsonResp(w, http.StatusOK, resp)
		return
	}

	var uptime float64
	for _, e := range entries {
		uptime += e.Result.UptimePct
		resp.AlertCount += e.AlertCount
		switch e.Result.Check.State {
		case types.StateUp:
			resp.UpCount++
		case types.StateDown:
			resp.DownCount++
		default:
			resp.UnknownCount++
		}
	}
	resp.UptimePct = uptime / float64(len(entries))
	resp.State = overallState(resp)
	jsonResp(w, http.StatusOK, resp)
}

// listChecks returns GET /api/v1/checks.
func (h *Handler) listChecks(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, checkResponses(h.deps.Status.List()))
}

// getCheck returns GET /api/v1/checks/{id}. Stale entries are not found.
func (h *Handler) getCheck(w http.ResponseWriter, r *http.Request) {
	e, ok := h.deps.Status.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "check not found")
		return
	}
	jsonResp(w, http.StatusOK, toCheckResponse(e))
}

// checkHistory returns GET /api/v1/checks/{id}/history.
func (h *Handler) checkHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		jsonErr(w, http.StatusNotFound, "history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	id := chi.URLParam(r, "id")
	recs, err := h.deps.History.Recent(r.Context(), id, limit)
	if err != nil {
		slog.Error("api: history query failed", "check", id, "err", err)
		jsonErr(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	resp := HistoryResponse{CheckID: id, Results: recs}

	pct, n, err := h.deps.History.Uptime(r.Context(), id, time.Now().Add(-uptimeWindow))
	if err != nil {
		slog.Warn("api: uptime query failed", "check", id, "err", err)
	} else if n > 0 {
		resp.Uptime24hPct = &pct
		resp.Samples24h = n
	}
	jsonResp(w, http.StatusOK, resp)
}

// logs returns GET /api/v1/logs.
func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Logs == nil {
		jsonResp(w, http.StatusOK, LogsResponse{Logs: []string{}})
		return
	}

	compressed, err := parseBool(r.URL.Query().Get("compressed"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "compressed must be a boolean")
		return
	}
	ids, err := h.deps.Logs.List(r.Context(), compressed)
	if err != nil {
		slog.Error("api: list logs failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "list logs failed")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	jsonResp(w, http.StatusOK, LogsResponse{Logs: ids})
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.deps.Status))
}

// BuildSnapshot assembles the snapshot payload from the live entries in st.
func BuildSnapshot(st *status.Store) SnapshotResponse {
	return SnapshotResponse{
		Checks:      checkResponses(st.List()),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

var errNotBool = errors.New("not a boolean")

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, errNotBool
	}
	return b, nil
}

// overallState is "up" when every check is up, "down" when every check is
// down and "degraded" otherwise.
func overallState(h HealthResponse) string {
	switch h.CheckCount {
	case h.UpCount:
		return string(types.StateUp)
	case h.DownCount:
		return string(types.StateDown)
	case h.UnknownCount:
		return string(types.StateUnknown)
	default:
		return "degraded"
	}
}

func checkResponses(entries []status.Entry) []CheckResponse {
	out := make([]CheckResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toCheckResponse(e))
	}
	return out
}

// toCheckResponse maps a status.Entry to its JSON representation.
func toCheckResponse(e status.Entry) CheckResponse {
	r := e.Result
	c := r.Check
	return CheckResponse{
		ID:           c.ID,
		Method:       c.Method,
		Target:       c.Target(),
		State:        string(c.State),
		Previous:     string(r.Previous),
		LastChecked:  r.Time.UTC().Format(time.RFC3339),
		Errored:      r.Outcome.Errored,
		ErrorKind:    string(r.Outcome.ErrorKind),
		ErrorMessage: r.Outcome.ErrorMessage,
		ResponseCode: r.Outcome.ResponseCode,
		DurationMS:   r.Outcome.DurationMS,
		CertDaysLeft: r.Outcome.CertDaysLeft,
		UptimePct:    r.UptimePct,
		AlertCount:   e.AlertCount,
		LastAlertID:  r.AlertID,
		Diagnostics:  computeDiagnostics(e),
		UpdatedAt:    e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
