package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

// Executor issues probe requests. It is safe for concurrent use.
type Executor struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	now          func() time.Time // injectable for deterministic tests
}

// New returns an Executor configured from cfg.
func New(cfg config.ProbeConfig) *Executor {
	return &Executor{
		client:       buildHTTPClient(cfg),
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		now:          time.Now,
	}
}

// buildHTTPClient constructs the shared client. There is no client-level
// timeout; each probe is bounded by its own timer.
func buildHTTPClient(cfg config.ProbeConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Probe sends exactly one request for c and returns its outcome. The
// outcome is settled by whichever happens first: a response, a transport
// error, or c.TimeoutSeconds elapsing.
func (e *Executor) Probe(ctx context.Context, c types.Check) types.Outcome {
	start := e.now()

	req, err := e.newRequest(c)
	if err != nil {
		return failed(types.ErrorNetwork, err, 0)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req = req.WithContext(reqCtx)

	// Buffered so the request goroutine never blocks after losing the race.
	done := make(chan types.Outcome, 1)
	go func() { done <- e.roundTrip(req, start) }()

	timer := time.NewTimer(time.Duration(c.TimeoutSeconds) * time.Second)
	defer timer.Stop()

	select {
	case out := <-done:
		return out
	case <-timer.C:
		return failed(types.ErrorTimeout,
			fmt.Errorf("no response within %ds", c.TimeoutSeconds), e.since(start))
	case <-ctx.Done():
		return failed(types.ErrorTimeout, ctx.Err(), e.since(start))
	}
}

func (e *Executor) newRequest(c types.Check) (*http.Request, error) {
	u, err := url.Parse(c.Target())
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse target: no host in %q", c.URL)
	}
	req, err := http.NewRequest(c.Method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	return req, nil
}

func (e *Executor) roundTrip(req *http.Request, start time.Time) types.Outcome {
	resp, err := e.client.Do(req)
	if err != nil {
		kind := types.ErrorNetwork
		if isTimeout(err) {
			kind = types.ErrorTimeout
		}
		return failed(kind, err, e.since(start))
	}
	defer resp.Body.Close()

	out := types.Outcome{
		ResponseCode: resp.StatusCode,
		DurationMS:   e.since(start),
	}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		days := daysLeft(resp.TLS.PeerCertificates[0].NotAfter, e.now())
		out.CertDaysLeft = &days
	}

	// Drain so the connection can be reused.
	if e.maxBodyBytes > 0 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, e.maxBodyBytes)) //nolint:errcheck
	}
	return out
}

func (e *Executor) since(start time.Time) int64 {
	return e.now().Sub(start).Milliseconds()
}

func failed(kind types.ErrorKind, err error, durMS int64) types.Outcome {
	return types.Outcome{
		Errored:      true,
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
		DurationMS:   durMS,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// daysLeft returns whole days from now until notAfter, rounded down.
func daysLeft(notAfter, now time.Time) int {
	return int(math.Floor(notAfter.Sub(now).Hours() / 24))
}
