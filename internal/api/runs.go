package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/pipeline"
)

// ErrRunActive is returned by Start while a run is in progress.
var ErrRunActive = errors.New("a run is already in progress")

// Runner executes one crawl. *pipeline.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// RunManager serializes runs started over HTTP and remembers the last report.
type RunManager struct {
	runner  Runner
	base    context.Context
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	active  bool
	started time.Time
	latest  *pipeline.Report
	done    chan struct{}
}

// NewRunManager builds a manager. Runs inherit base and are bounded by
// timeout when it is positive.
func NewRunManager(base context.Context, runner Runner, timeout time.Duration, logger *zap.Logger) *RunManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunManager{runner: runner, base: base, timeout: timeout, logger: logger}
}

// Start launches a run in the background.
func (m *RunManager) Start(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return ErrRunActive
	}
	m.active = true
	m.started = now
	m.done = make(chan struct{})
	go m.run(m.done)
	return nil
}

func (m *RunManager) run(done chan struct{}) {
	defer close(done)
	ctx := m.base
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	report, err := m.runner.Run(ctx)
	if err != nil {
		m.logger.Warn("api run failed", zap.String("run_id", report.RunID), zap.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.latest = &report
}

// Status reports whether a run is active, since when, and the last report.
func (m *RunManager) Status() (bool, time.Time, *pipeline.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.started, m.latest
}

// Wait blocks until the current run, if any, finishes or ctx ends.
func (m *RunManager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
