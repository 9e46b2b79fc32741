// Package dispatcher fans entity tasks out over a bounded worker group.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/metrics"
	"github.com/JakeFAU/roster-crawler/internal/progress"
	"github.com/JakeFAU/roster-crawler/internal/worker"
)

// Processor runs one task. *worker.Worker satisfies it.
type Processor interface {
	Process(ctx context.Context, runID string, ref crawler.EntityRef) worker.Result
}

// Dispatcher runs at most Limit tasks at once and collects every outcome.
type Dispatcher struct {
	processor Processor
	limit     int
	emitter   progress.Emitter
	clock     crawler.Clock
	logger    *zap.Logger

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// New creates a Dispatcher. A limit <= 0 uses crawler.DefaultConcurrencyLimit.
func New(processor Processor, limit int, emitter progress.Emitter, clock crawler.Clock, logger *zap.Logger) *Dispatcher {
	if limit <= 0 {
		limit = crawler.DefaultConcurrencyLimit
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		processor: processor,
		limit:     limit,
		emitter:   emitter,
		clock:     clock,
		logger:    logger,
	}
}

// Run processes refs and returns one outcome per ref in input order. Task
// failures are recorded on their outcome and never cancel sibling tasks.
func (d *Dispatcher) Run(ctx context.Context, runID string, refs []crawler.EntityRef) ([]crawler.Outcome, error) {
	if len(refs) == 0 {
		return nil, crawler.ErrDiscoveryEmpty
	}
	d.maxInFlight.Store(0)
	outcomes := make([]crawler.Outcome, len(refs))
	states := newTracker(len(refs), d.logger)

	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, ref := range refs {
		g.Go(func() error {
			d.runTask(ctx, runID, i, ref, outcomes, states)
			return nil
		})
	}
	_ = g.Wait()

	for i, state := range states.snapshot() {
		if !state.IsTerminal() {
			d.logger.Error("task left non-terminal", zap.Int("task", i), zap.String("state", string(state)))
		}
	}

	d.logger.Debug("batch complete",
		zap.String("run_id", runID),
		zap.Int("tasks", len(refs)),
		zap.Int64("max_in_flight", d.maxInFlight.Load()),
	)
	return outcomes, nil
}

// MaxInFlight reports the highest number of concurrent tasks observed during
// the most recent Run.
func (d *Dispatcher) MaxInFlight() int {
	return int(d.maxInFlight.Load())
}

func (d *Dispatcher) runTask(
	ctx context.Context,
	runID string,
	idx int,
	ref crawler.EntityRef,
	outcomes []crawler.Outcome,
	states *tracker,
) {
	site := crawler.SiteLabel(ref.URL)
	states.move(idx, crawler.TaskInFlight)
	d.enter()
	defer d.leave()

	d.emit(progress.Event{RunID: runID, Stage: progress.StageTaskStart, Site: site, EntityID: ref.ID, URL: ref.URL})

	res := d.process(ctx, runID, ref)
	outcomes[idx] = res.Outcome

	if res.Outcome.Succeeded() {
		states.move(idx, crawler.TaskSucceeded)
		d.emit(progress.Event{
			RunID:       runID,
			Stage:       progress.StageTaskDone,
			Site:        site,
			EntityID:    ref.ID,
			URL:         ref.URL,
			Bytes:       int64(res.Bytes),
			StatusClass: progress.ClassifyStatus(res.Status),
			Degraded:    res.Degraded,
			Dur:         res.Duration,
		})
		return
	}
	states.move(idx, crawler.TaskFailed)
	d.emit(progress.Event{
		RunID:       runID,
		Stage:       progress.StageTaskFailed,
		Site:        site,
		EntityID:    ref.ID,
		URL:         ref.URL,
		StatusClass: progress.ClassifyStatus(res.Status),
		FailureKind: res.Outcome.Failure.Kind,
		Dur:         res.Duration,
		Note:        res.Outcome.Failure.Error(),
	})
}

// process guards the outcome slot against a Processor that panics without
// recovering.
func (d *Dispatcher) process(ctx context.Context, runID string, ref crawler.EntityRef) (res worker.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("processor panicked", zap.String("run_id", runID), zap.String("entity_id", ref.ID), zap.Any("panic", r))
			res = worker.Result{
				Outcome:  crawler.FailureOutcome(ref, crawler.PanicFailure(ref.URL, r)),
				Duration: time.Since(start),
			}
		}
	}()
	res = d.processor.Process(ctx, runID, ref)
	if res.Outcome.Record == nil && res.Outcome.Failure == nil {
		res.Outcome = crawler.FailureOutcome(ref, crawler.PanicFailure(ref.URL, "processor returned an empty outcome"))
	}
	return res
}

func (d *Dispatcher) enter() {
	n := d.inFlight.Add(1)
	for {
		peak := d.maxInFlight.Load()
		if n <= peak || d.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	metrics.IncTasksInFlight()
}

func (d *Dispatcher) leave() {
	d.inFlight.Add(-1)
	metrics.DecTasksInFlight()
}

func (d *Dispatcher) emit(evt progress.Event) {
	evt.TS = d.now()
	d.emitter.Emit(evt)
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock.Now().UTC()
}

// tracker holds the lifecycle state of every task in a batch.
type tracker struct {
	mu     sync.Mutex
	states []crawler.TaskState
	logger *zap.Logger
}

func newTracker(n int, logger *zap.Logger) *tracker {
	states := make([]crawler.TaskState, n)
	for i := range states {
		states[i] = crawler.TaskPending
	}
	return &tracker{states: states, logger: logger}
}

func (t *tracker) move(idx int, to crawler.TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := crawler.CheckTransition(t.states[idx], to); err != nil {
		t.logger.Error("task state violation", zap.Int("task", idx), zap.Error(err))
		return
	}
	t.states[idx] = to
}

func (t *tracker) snapshot() []crawler.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]crawler.TaskState(nil), t.states...)
}
