// Package pipeline runs one roster crawl end to end: discovery, bounded
// fetch and extract, aggregation and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/progress"
	"github.com/JakeFAU/roster-crawler/internal/results"
	"github.com/JakeFAU/roster-crawler/internal/sink"
)

// DefaultTopN bounds the distributions included in a report.
const DefaultTopN = 10

// Dispatcher fans out per-entity tasks. *dispatcher.Dispatcher satisfies it.
type Dispatcher interface {
	Run(ctx context.Context, runID string, refs []crawler.EntityRef) ([]crawler.Outcome, error)
}

// Writer persists a result set. *sink.Writer satisfies it.
type Writer interface {
	Write(ctx context.Context, runID string, set crawler.ResultSet) (sink.Artifacts, error)
}

// Report summarizes one run.
type Report struct {
	RunID         string                     `json:"runId"`
	StartedAt     time.Time                  `json:"startedAt"`
	FinishedAt    time.Time                  `json:"finishedAt"`
	Discovered    int                        `json:"discovered"`
	Summary       crawler.Summary            `json:"summary"`
	Distributions map[string][]results.Count `json:"distributions,omitempty"`
	Artifacts     sink.Artifacts             `json:"artifacts"`
	Error         string                     `json:"error,omitempty"`

	// Reduced is the reduced payload of the run, kept for API reads.
	Reduced *sink.ReducedPayload `json:"-"`
}

// Runner wires the stages of a run.
type Runner struct {
	discoverer crawler.Discoverer
	dispatcher Dispatcher
	writer     Writer
	emitter    progress.Emitter
	ids        crawler.IDGenerator
	clock      crawler.Clock
	logger     *zap.Logger
	topN       int
}

// Config carries the collaborators of a Runner. Emitter, Clock and Logger
// are optional.
type Config struct {
	Discoverer crawler.Discoverer
	Dispatcher Dispatcher
	Writer     Writer
	Emitter    progress.Emitter
	IDs        crawler.IDGenerator
	Clock      crawler.Clock
	Logger     *zap.Logger
	TopN       int
}

// New validates cfg and builds a Runner.
func New(cfg Config) (*Runner, error) {
	switch {
	case cfg.Discoverer == nil:
		return nil, errors.New("pipeline: discoverer is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("pipeline: dispatcher is required")
	case cfg.Writer == nil:
		return nil, errors.New("pipeline: writer is required")
	case cfg.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	}
	r := &Runner{
		discoverer: cfg.Discoverer,
		dispatcher: cfg.Dispatcher,
		writer:     cfg.Writer,
		emitter:    cfg.Emitter,
		ids:        cfg.IDs,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		topN:       cfg.TopN,
	}
	if r.emitter == nil {
		r.emitter = progress.Nop{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.topN <= 0 {
		r.topN = DefaultTopN
	}
	return r, nil
}

// Run executes one crawl. Per-entity failures are counted in the report;
// only discovery and output failures are returned.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("new run id: %w", err)
	}
	report := Report{RunID: runID, StartedAt: r.now()}
	logger := r.logger.With(zap.String("run_id", runID))
	r.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart})
	logger.Info("run started")

	fail := func(err error) (Report, error) {
		report.FinishedAt = r.now()
		report.Error = err.Error()
		r.emit(progress.Event{
			RunID: runID,
			Stage: progress.StageRunError,
			Dur:   report.FinishedAt.Sub(report.StartedAt),
			Note:  err.Error(),
		})
		logger.Error("run failed", zap.Error(err))
		return report, err
	}

	refs, err := r.discoverer.Discover(ctx)
	if err != nil {
		return fail(err)
	}
	report.Discovered = len(refs)
	if len(refs) == 0 {
		return fail(crawler.ErrDiscoveryEmpty)
	}

	outcomes, err := r.dispatcher.Run(ctx, runID, refs)
	if err != nil {
		return fail(fmt.Errorf("dispatch: %w", err))
	}

	set, summary := results.Aggregate(outcomes, r.now())
	report.Summary = summary
	report.Distributions = map[string][]results.Count{
		results.ByAffiliation: results.Distribution(set.Records, results.ByAffiliation, r.topN),
		results.ByRegion:      results.Distribution(set.Records, results.ByRegion, r.topN),
	}

	art, err := r.writer.Write(ctx, runID, set)
	report.Artifacts = art
	if err != nil {
		return fail(fmt.Errorf("write results: %w", err))
	}
	reduced := sink.Reduce(set)
	report.Reduced = &reduced
	report.FinishedAt = r.now()

	r.emit(progress.Event{
		RunID:  runID,
		Stage:  progress.StageRunDone,
		Dur:    report.FinishedAt.Sub(report.StartedAt),
		Counts: &summary,
	})
	logger.Info("run completed",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Any("failures_by_kind", summary.FailuresByKind),
		zap.Any("top_affiliations", report.Distributions[results.ByAffiliation]),
		zap.Any("top_regions", report.Distributions[results.ByRegion]),
	)
	return report, nil
}

func (r *Runner) emit(evt progress.Event) {
	evt.TS = r.now()
	r.emitter.Emit(evt)
}

func (r *Runner) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now().UTC()
}
