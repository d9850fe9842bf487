package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/pulsewatch/monitor/internal/outcome"
	"github.com/obsidianstack/pulsewatch/monitor/internal/status"
	"github.com/obsidianstack/pulsewatch/monitor/internal/ws"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func result(id string, state types.State) outcome.Result {
	return outcome.Result{
		Check: types.Check{
			ID:             id,
			Protocol:       "http",
			URL:            id + ".example.com",
			Method:         "GET",
			SuccessCodes:   []int{200},
			TimeoutSeconds: 5,
			State:          state,
		},
		Previous: types.StateUp,
		Time:     time.Now(),
	}
}

func newStore(results ...outcome.Result) *status.Store {
	st := status.New(5 * time.Minute)
	for _, r := range results {
		st.Observe(context.Background(), r)
	}
	return st
}

// startHub serves hub over httptest and runs its loop until cleanup.
func startHub(t *testing.T, interval time.Duration, st *status.Store) (string, *ws.Hub, context.CancelFunc) {
	t.Helper()

	hub := ws.New(st, interval)
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func waitCount(t *testing.T, hub *ws.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count: got %d, want %d", hub.Count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_ImmediateSnapshotOnConnect(t *testing.T) {
	url, _, _ := startHub(t, time.Hour, newStore(result("a", types.StateUp), result("b", types.StateDown)))

	m := readMessage(t, dial(t, url))
	if m["event"] != ws.EventSnapshot {
		t.Errorf("event: got %v, want snapshot", m["event"])
	}
	data := m["data"].(map[string]any)
	if data["generated_at"] == nil || data["generated_at"] == "" {
		t.Error("generated_at: missing")
	}
	if checks := data["checks"].([]any); len(checks) != 2 {
		t.Errorf("checks: got %d, want 2", len(checks))
	}
}

func TestHub_BroadcastOnTick(t *testing.T) {
	st := newStore()
	url, _, _ := startHub(t, testInterval, st)

	conn := dial(t, url)
	first := readMessage(t, conn)
	if checks := first["data"].(map[string]any)["checks"].([]any); len(checks) != 0 {
		t.Fatalf("initial checks: got %d, want 0", len(checks))
	}

	st.Observe(context.Background(), result("late", types.StateUp))

	// Ticks may land before the Observe; read until the check shows up.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		checks := m["data"].(map[string]any)["checks"].([]any)
		if len(checks) == 1 {
			if id := checks[0].(map[string]any)["id"]; id != "late" {
				t.Errorf("id: got %v, want late", id)
			}
			return
		}
	}
	t.Fatal("tick broadcast never included the new check")
}

func TestHub_ObservePushesAlerts(t *testing.T) {
	url, hub, _ := startHub(t, time.Hour, newStore())
	conn := dial(t, url)
	readMessage(t, conn) // initial snapshot
	waitCount(t, hub, 1)

	quiet := result("a", types.StateUp)
	hub.Observe(context.Background(), quiet)

	r := result("a", types.StateDown)
	r.Alert = true
	r.AlertID = "alert-1"
	r.Notified = true
	hub.Observe(context.Background(), r)

	m := readMessage(t, conn)
	if m["event"] != ws.EventAlert {
		t.Fatalf("event: got %v, want alert", m["event"])
	}
	data := m["data"].(map[string]any)
	if data["check_id"] != "a" || data["state"] != "down" || data["previous_state"] != "up" {
		t.Errorf("alert data: got %v", data)
	}
	if data["alert_id"] != "alert-1" {
		t.Errorf("alert_id: got %v", data["alert_id"])
	}
	if data["target"] != "http://a.example.com" {
		t.Errorf("target: got %v", data["target"])
	}
}

func TestHub_CountTracksClients(t *testing.T) {
	url, hub, _ := startHub(t, time.Hour, newStore())

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, url)
		readMessage(t, conns[i])
	}
	waitCount(t, hub, 3)

	conns[0].Close()
	waitCount(t, hub, 2)
}

func TestHub_CancelClosesConnections(t *testing.T) {
	url, hub, cancel := startHub(t, testInterval, newStore())
	conn := dial(t, url)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	cancel()
	waitCount(t, hub, 0)
}

func TestHub_NonWebSocketRequest(t *testing.T) {
	hub := ws.New(newStore(), testInterval)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
