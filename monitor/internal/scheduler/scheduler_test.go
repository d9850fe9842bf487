package scheduler

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
	"github.com/obsidianstack/pulsewatch/monitor/internal/journal"
	"github.com/obsidianstack/pulsewatch/monitor/internal/outcome"
	"github.com/obsidianstack/pulsewatch/monitor/internal/probe"
	"github.com/obsidianstack/pulsewatch/monitor/internal/records"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

type sentMessage struct {
	phone, message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeNotifier) Send(_ context.Context, phone, message string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{phone, message})
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type harness struct {
	store    *records.Store
	journal  *journal.Journal
	notifier *fakeNotifier
	sched    *Scheduler
}

func newHarness(t *testing.T, prober Prober, opts Options) *harness {
	t.Helper()
	store, err := records.New(t.TempDir())
	if err != nil {
		t.Fatalf("records.New: %v", err)
	}
	j, err := journal.New(t.TempDir())
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	n := &fakeNotifier{}
	proc := outcome.New(j, store, n)
	return &harness{
		store:    store,
		journal:  j,
		notifier: n,
		sched:    New(store, j, prober, proc, opts),
	}
}

// cycle runs one check cycle and waits for its tasks.
func (h *harness) cycle(t *testing.T) int {
	t.Helper()
	n := h.sched.RunChecks(context.Background())
	h.sched.tasks.Wait()
	return n
}

func (h *harness) check(t *testing.T, id string) types.Check {
	t.Helper()
	var c types.Check
	if err := h.store.Read(context.Background(), types.NamespaceChecks, id, &c); err != nil {
		t.Fatalf("read %s: %v", id, err)
	}
	return c
}

func (h *harness) logLines(t *testing.T, id string) []types.LogEntry {
	t.Helper()
	f, err := os.Open(h.journal.Root() + "/" + id + ".log")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var out []types.LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e types.LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode log line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	return out
}

func TestCheckCycle_StateTransitionAlertsOnce(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	h := newHarness(t, probe.New(config.ProbeConfig{}), Options{})
	ctx := context.Background()
	host := strings.TrimPrefix(srv.URL, "http://")
	err := h.store.Create(ctx, types.NamespaceChecks, "c1", map[string]any{
		"id":             "c1",
		"userPhone":      "5551234567",
		"protocol":       "http",
		"url":            host,
		"method":         "GET",
		"successCodes":   []int{200},
		"timeoutSeconds": 5,
		"state":          "unknown",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// First probe: unknown -> up, no alert.
	if n := h.cycle(t); n != 1 {
		t.Fatalf("dispatched %d, want 1", n)
	}
	c := h.check(t, "c1")
	if c.State != types.StateUp {
		t.Errorf("state: got %q, want %q", c.State, types.StateUp)
	}
	if c.LastChecked == 0 {
		t.Error("lastChecked not set")
	}
	if got := len(h.notifier.messages()); got != 0 {
		t.Fatalf("notifications after first probe: got %d, want 0", got)
	}

	// Second probe: up -> down, one alert.
	status.Store(http.StatusInternalServerError)
	h.cycle(t)
	c = h.check(t, "c1")
	if c.State != types.StateDown {
		t.Errorf("state: got %q, want %q", c.State, types.StateDown)
	}
	msgs := h.notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(msgs))
	}
	if msgs[0].phone != "5551234567" {
		t.Errorf("phone: got %q", msgs[0].phone)
	}
	want := `Alert: Your check for GET method at http://` + host + ` is currently "down"`
	if msgs[0].message != want {
		t.Errorf("message: got %q, want %q", msgs[0].message, want)
	}

	// Third probe: still down, no further alert.
	h.cycle(t)
	if got := len(h.notifier.messages()); got != 1 {
		t.Errorf("notifications after steady state: got %d, want 1", got)
	}

	lines := h.logLines(t, "c1")
	if len(lines) != 3 {
		t.Fatalf("log lines: got %d, want 3", len(lines))
	}
	if lines[0].Check.State != types.StateUnknown || lines[0].State != types.StateUp {
		t.Errorf("line 0: got %q -> %q", lines[0].Check.State, lines[0].State)
	}
	if !lines[1].Alert || lines[1].AlertID == "" {
		t.Errorf("line 1 should carry an alert id: %+v", lines[1])
	}
	if lines[2].Alert {
		t.Error("line 2 should not alert")
	}
}

type blockingProber struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingProber) Probe(ctx context.Context, c types.Check) types.Outcome {
	b.calls.Add(1)
	<-b.release
	return types.Outcome{ResponseCode: 200}
}

func createValid(t *testing.T, s *records.Store, id string) {
	t.Helper()
	err := s.Create(context.Background(), types.NamespaceChecks, id, types.Check{
		ID:             id,
		UserPhone:      "5551234567",
		Protocol:       "http",
		URL:            "example.invalid",
		Method:         "GET",
		SuccessCodes:   []int{200},
		TimeoutSeconds: 1,
		State:          types.StateUnknown,
	})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func TestRunChecks_SkipsInFlight(t *testing.T) {
	p := &blockingProber{release: make(chan struct{})}
	h := newHarness(t, p, Options{})
	createValid(t, h.store, "c1")

	ctx := context.Background()
	if n := h.sched.RunChecks(ctx); n != 1 {
		t.Fatalf("first cycle dispatched %d, want 1", n)
	}
	if n := h.sched.RunChecks(ctx); n != 0 {
		t.Errorf("second cycle dispatched %d, want 0 while first is in flight", n)
	}
	if got := h.sched.inflight.len(); got != 1 {
		t.Errorf("inflight: got %d, want 1", got)
	}

	close(p.release)
	h.sched.tasks.Wait()

	if got := h.sched.inflight.len(); got != 0 {
		t.Errorf("inflight after completion: got %d, want 0", got)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("probe calls: got %d, want 1", got)
	}
	if n := h.cycle(t); n != 1 {
		t.Errorf("cycle after release dispatched %d, want 1", n)
	}
}

func TestRunChecks_TaskSurvivesCycleCancel(t *testing.T) {
	p := &blockingProber{release: make(chan struct{})}
	h := newHarness(t, p, Options{})
	createValid(t, h.store, "c1")

	ctx, cancel := context.WithCancel(context.Background())
	h.sched.RunChecks(ctx)
	cancel()
	close(p.release)
	h.sched.tasks.Wait()

	if c := h.check(t, "c1"); c.State != types.StateUp {
		t.Errorf("state: got %q, want %q", c.State, types.StateUp)
	}
}

type countingProber struct {
	mu  sync.Mutex
	ids []string
}

func (c *countingProber) Probe(_ context.Context, chk types.Check) types.Outcome {
	c.mu.Lock()
	c.ids = append(c.ids, chk.ID)
	c.mu.Unlock()
	return types.Outcome{ResponseCode: 200}
}

func TestRunChecks_InvalidCheckSkipped(t *testing.T) {
	p := &countingProber{}
	h := newHarness(t, p, Options{})
	ctx := context.Background()

	createValid(t, h.store, "good")
	bad := map[string]any{"id": "bad", "userPhone": "123"}
	if err := h.store.Create(ctx, types.NamespaceChecks, "bad", bad); err != nil {
		t.Fatalf("create bad: %v", err)
	}
	mismatch := types.Check{
		ID: "other", UserPhone: "5551234567", Protocol: "http", URL: "x",
		Method: "GET", SuccessCodes: []int{200}, TimeoutSeconds: 1,
	}
	if err := h.store.Create(ctx, types.NamespaceChecks, "mismatch", mismatch); err != nil {
		t.Fatalf("create mismatch: %v", err)
	}

	h.cycle(t)

	if len(p.ids) != 1 || p.ids[0] != "good" {
		t.Errorf("probed: got %v, want [good]", p.ids)
	}
	raw, err := h.store.ReadRaw(ctx, types.NamespaceChecks, "bad")
	if err != nil {
		t.Fatalf("read bad: %v", err)
	}
	if strings.Contains(string(raw), "lastChecked") {
		t.Errorf("invalid check was modified: %s", raw)
	}
	logs, err := h.journal.List(ctx, false)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 || logs[0] != "good" {
		t.Errorf("logs: got %v, want [good]", logs)
	}
}

// flakyRecords fails reads for a single id.
type flakyRecords struct {
	Records
	failID string
}

func (f *flakyRecords) ReadRaw(ctx context.Context, ns, id string) ([]byte, error) {
	if id == f.failID {
		return nil, errors.New("disk on fire")
	}
	return f.Records.ReadRaw(ctx, ns, id)
}

type failingProcessor struct {
	Processor
	failID string
}

func (f *failingProcessor) Process(ctx context.Context, c types.Check, out types.Outcome) (*outcome.Result, error) {
	if c.ID == f.failID {
		return nil, errors.New("persist failed")
	}
	return f.Processor.Process(ctx, c, out)
}

func TestRunChecks_ErrorsAreIsolated(t *testing.T) {
	h := newHarness(t, &countingProber{}, Options{})
	for _, id := range []string{"a", "b", "c"} {
		createValid(t, h.store, id)
	}

	proc := &failingProcessor{Processor: outcome.New(h.journal, h.store, h.notifier), failID: "b"}
	h.sched = New(&flakyRecords{Records: h.store, failID: "a"}, h.journal, &countingProber{}, proc, Options{})
	h.cycle(t)

	if c := h.check(t, "a"); c.Checked() {
		t.Error("unreadable check a should be untouched")
	}
	if c := h.check(t, "b"); c.Checked() {
		t.Error("check b with failing processor should be untouched")
	}
	if c := h.check(t, "c"); c.State != types.StateUp {
		t.Errorf("check c: got %q, want %q", c.State, types.StateUp)
	}
}

type fakeArchiver struct {
	mu    sync.Mutex
	paths map[string]string
	err   error
}

func (f *fakeArchiver) Archive(_ context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paths == nil {
		f.paths = make(map[string]string)
	}
	f.paths[id] = path
	return f.err
}

type fakePruner struct {
	before time.Time
	calls  int
}

func (f *fakePruner) Prune(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	f.calls++
	return 3, nil
}

func TestRunRotation_RotatesArchivesAndPrunes(t *testing.T) {
	arch := &fakeArchiver{}
	pruner := &fakePruner{}
	h := newHarness(t, &countingProber{}, Options{
		Archiver:  arch,
		Pruner:    pruner,
		Retention: time.Hour,
	})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h.sched.now = func() time.Time { return now }

	ctx := context.Background()
	entries := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for _, e := range entries {
		if err := h.journal.Append(ctx, "c1", e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// c2 exists but is empty after an earlier rotation.
	if err := h.journal.Append(ctx, "c2", `{"n":0}`); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.journal.Truncate(ctx, "c2"); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if n := h.sched.RunRotation(ctx); n != 1 {
		t.Fatalf("rotated %d, want 1", n)
	}

	artifact := "c1-1772323200000"
	arts, err := h.journal.ListArtifacts(ctx)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(arts) != 1 || arts[0] != artifact {
		t.Fatalf("artifacts: got %v, want [%s]", arts, artifact)
	}

	path, ok := arch.paths[artifact]
	if !ok {
		t.Fatalf("artifact not archived: %v", arch.paths)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	var got []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	if strings.Join(got, ",") != strings.Join(entries, ",") {
		t.Errorf("artifact lines: got %v, want %v", got, entries)
	}

	live, err := os.Stat(h.journal.Root() + "/c1.log")
	if err != nil {
		t.Fatalf("stat live log: %v", err)
	}
	if live.Size() != 0 {
		t.Errorf("live log size after rotation: got %d, want 0", live.Size())
	}

	if pruner.calls != 1 {
		t.Fatalf("prune calls: got %d, want 1", pruner.calls)
	}
	if want := now.Add(-time.Hour); !pruner.before.Equal(want) {
		t.Errorf("prune cutoff: got %v, want %v", pruner.before, want)
	}
}

func TestRunRotation_ArchiveFailureKeepsArtifact(t *testing.T) {
	arch := &fakeArchiver{err: errors.New("bucket gone")}
	h := newHarness(t, &countingProber{}, Options{Archiver: arch})
	ctx := context.Background()
	if err := h.journal.Append(ctx, "c1", `{}`); err != nil {
		t.Fatalf("append: %v", err)
	}

	if n := h.sched.RunRotation(ctx); n != 1 {
		t.Fatalf("rotated %d, want 1", n)
	}
	arts, _ := h.journal.ListArtifacts(ctx)
	if len(arts) != 1 {
		t.Errorf("artifacts: got %v, want one", arts)
	}
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	p := &countingProber{}
	h := newHarness(t, p, Options{CheckInterval: time.Hour, RotationInterval: time.Hour})
	createValid(t, h.store, "c1")

	ctx, cancel := context.WithCancel(context.Background())
	h.sched.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		p.mu.Lock()
		n := len(p.ids)
		p.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("check cycle did not run on start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	done := make(chan struct{})
	go func() {
		h.sched.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(nil, nil, nil, nil, Options{})
	if s.opts.CheckInterval != DefaultCheckInterval {
		t.Errorf("check interval: got %v", s.opts.CheckInterval)
	}
	if s.opts.RotationInterval != DefaultRotationInterval {
		t.Errorf("rotation interval: got %v", s.opts.RotationInterval)
	}
}
