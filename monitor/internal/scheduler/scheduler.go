package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/pulsewatch/monitor/internal/checks"
	"github.com/obsidianstack/pulsewatch/monitor/internal/journal"
	"github.com/obsidianstack/pulsewatch/monitor/internal/outcome"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

// Default cycle periods.
const (
	DefaultCheckInterval    = 60 * time.Second
	DefaultRotationInterval = 24 * time.Hour
)

// Records lists and reads check documents.
type Records interface {
	List(ctx context.Context, ns string) ([]string, error)
	ReadRaw(ctx context.Context, ns, id string) ([]byte, error)
}

// Logs lists and rotates live logs.
type Logs interface {
	List(ctx context.Context, includeCompressed bool) ([]string, error)
	Rotate(ctx context.Context, id, newID string) (string, error)
}

// Prober runs one probe.
type Prober interface {
	Probe(ctx context.Context, c types.Check) types.Outcome
}

// Processor applies a probe outcome to a check.
type Processor interface {
	Process(ctx context.Context, c types.Check, out types.Outcome) (*outcome.Result, error)
}

// Archiver receives rotated artifacts.
type Archiver interface {
	Archive(ctx context.Context, artifactID, path string) error
}

// Pruner drops result history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Options tunes a Scheduler. Zero values select defaults.
type Options struct {
	CheckInterval    time.Duration
	RotationInterval time.Duration

	// Archiver and Pruner are optional.
	Archiver Archiver
	Pruner   Pruner

	// Retention is passed to Pruner as now minus Retention. Zero disables
	// pruning.
	Retention time.Duration
}

// Scheduler owns the check and rotation cycles.
type Scheduler struct {
	records   Records
	logs      Logs
	prober    Prober
	processor Processor
	opts      Options

	inflight *inflight
	loops    sync.WaitGroup
	tasks    sync.WaitGroup
	now      func() time.Time // injectable for deterministic tests
}

// New wires a Scheduler from its collaborators.
func New(records Records, logs Logs, prober Prober, processor Processor, opts Options) *Scheduler {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.RotationInterval <= 0 {
		opts.RotationInterval = DefaultRotationInterval
	}
	return &Scheduler{
		records:   records,
		logs:      logs,
		prober:    prober,
		processor: processor,
		opts:      opts,
		inflight:  newInflight(),
		now:       time.Now,
	}
}

// Start launches both cycles and returns immediately. Each cycle runs once
// right away and then on its interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("scheduler: starting",
		"check_interval", s.opts.CheckInterval,
		"rotation_interval", s.opts.RotationInterval,
	)
	s.loops.Add(2)
	go s.loop(ctx, "check", s.opts.CheckInterval, s.RunChecks)
	go s.loop(ctx, "rotation", s.opts.RotationInterval, s.RunRotation)
}

// Wait blocks until both loops have stopped and every dispatched task has
// finished. Call it after cancelling the context passed to Start.
func (s *Scheduler) Wait() {
	s.loops.Wait()
	s.tasks.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, cycle func(context.Context) int) {
	defer s.loops.Done()

	cycle(ctx)

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: cycle stopped", "cycle", name)
			return
		case <-t.C:
			cycle(ctx)
		}
	}
}

// RunChecks runs one check cycle and returns the number of tasks
// dispatched. It does not wait for them.
func (s *Scheduler) RunChecks(ctx context.Context) int {
	ids, err := s.records.List(ctx, types.NamespaceChecks)
	if err != nil {
		slog.Error("scheduler: list checks failed", "err", err)
		return 0
	}
	if len(ids) == 0 {
		slog.Debug("scheduler: no checks to process")
		return 0
	}

	// A new cycle never cancels work started by an earlier one.
	taskCtx := context.WithoutCancel(ctx)

	dispatched := 0
	for _, id := range ids {
		if !s.inflight.acquire(id) {
			slog.Debug("scheduler: check still in flight, skipping", "check", id)
			continue
		}
		dispatched++
		s.tasks.Add(1)
		go func(id string) {
			defer s.tasks.Done()
			defer s.inflight.release(id)
			s.runCheck(taskCtx, id)
		}(id)
	}
	slog.Debug("scheduler: check cycle dispatched", "checks", len(ids), "dispatched", dispatched)
	return dispatched
}

func (s *Scheduler) runCheck(ctx context.Context, id string) {
	raw, err := s.records.ReadRaw(ctx, types.NamespaceChecks, id)
	if err != nil {
		slog.Warn("scheduler: read check failed", "check", id, "err", err)
		return
	}

	c, err := checks.Validate(raw)
	if err != nil {
		slog.Warn("scheduler: invalid check skipped", "check", id, "err", err)
		return
	}
	if c.ID != id {
		slog.Warn("scheduler: check id does not match record id, skipped",
			"record", id, "check", c.ID)
		return
	}

	out := s.prober.Probe(ctx, c)
	if _, err := s.processor.Process(ctx, c, out); err != nil {
		slog.Error("scheduler: process outcome failed", "check", id, "err", err)
	}
}

// RunRotation runs one rotation cycle, waits for it to finish and returns
// the number of logs rotated.
func (s *Scheduler) RunRotation(ctx context.Context) int {
	ids, err := s.logs.List(ctx, false)
	if err != nil {
		slog.Error("scheduler: list logs failed", "err", err)
		return 0
	}

	stamp := s.now().UnixMilli()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		rotated int
	)
	for _, id := range ids {
		wg.Add(1)
		s.tasks.Add(1)
		go func(id string) {
			defer wg.Done()
			defer s.tasks.Done()
			if s.rotate(ctx, id, fmt.Sprintf("%s-%d", id, stamp)) {
				mu.Lock()
				rotated++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if rotated > 0 {
		slog.Info("scheduler: logs rotated", "count", rotated)
	}
	s.prune(ctx)
	return rotated
}

func (s *Scheduler) rotate(ctx context.Context, id, artifactID string) bool {
	path, err := s.logs.Rotate(ctx, id, artifactID)
	if err != nil {
		if errors.Is(err, journal.ErrEmptyLog) {
			slog.Debug("scheduler: log empty, nothing to rotate", "log", id)
			return false
		}
		slog.Error("scheduler: rotate log failed", "log", id, "err", err)
		return false
	}

	if s.opts.Archiver != nil {
		if err := s.opts.Archiver.Archive(ctx, artifactID, path); err != nil {
			slog.Error("scheduler: archive failed, artifact kept locally",
				"artifact", artifactID, "err", err)
		}
	}
	return true
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.opts.Pruner == nil || s.opts.Retention <= 0 {
		return
	}
	n, err := s.opts.Pruner.Prune(ctx, s.now().Add(-s.opts.Retention))
	if err != nil {
		slog.Error("scheduler: prune history failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("scheduler: pruned history", "rows", n)
	}
}
