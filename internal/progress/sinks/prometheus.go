package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/roster-crawler/internal/progress"
)

// PrometheusSink turns progress events into run and task collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	tasksCompleted *prometheus.CounterVec
	taskFailures   *prometheus.CounterVec
	taskBytes      *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	fieldsDegraded *prometheus.CounterVec

	tracker *runTracker
}

var _ progress.Sink = (*PrometheusSink)(nil)

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_runs_started_total",
			Help: "Total crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roster_runs_active",
			Help: "Crawl runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_tasks_completed_total",
			Help: "Entity tasks reaching a terminal state, by site and outcome.",
		}, []string{"site", "outcome"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_task_failures_total",
			Help: "Failed entity tasks by failure kind.",
		}, []string{"kind"}),
		taskBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_fetch_bytes_total",
			Help: "Entity page bytes downloaded per site.",
		}, []string{"site"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_task_duration_seconds",
			Help:    "Fetch and extract latency per entity task.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site", "outcome"}),
		fieldsDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_fields_degraded_total",
			Help: "Record fields left at their default because no strategy matched.",
		}, []string{"field"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.tasksCompleted,
		s.taskFailures,
		s.taskBytes,
		s.taskDuration,
		s.fieldsDegraded,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, "success")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StageTaskDone:
		s.finishTask(evt, string(evt.StatusClass))
		for _, field := range evt.Degraded {
			s.fieldsDegraded.WithLabelValues(field).Inc()
		}
	case progress.StageTaskFailed:
		s.finishTask(evt, "failed")
		s.taskFailures.WithLabelValues(string(evt.FailureKind)).Inc()
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

func (s *PrometheusSink) finishTask(evt progress.Event, outcome string) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	if outcome == "" {
		outcome = string(progress.StatusOther)
	}
	s.tasksCompleted.WithLabelValues(site, outcome).Inc()
	if evt.Bytes > 0 {
		s.taskBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.taskDuration.WithLabelValues(site, outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
