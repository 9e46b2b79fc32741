package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/progress"
)

// LogSink writes one structured log line per event. Task failures log at
// warn and run milestones at info; task progress stays at debug.
type LogSink struct {
	logger *zap.Logger
}

var _ progress.Sink = (*LogSink)(nil)

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageTaskStart:
			s.logger.Debug("task started", append(fields, taskFields(evt)...)...)
		case progress.StageTaskDone:
			fields = append(fields, taskFields(evt)...)
			fields = append(fields,
				zap.String("status_class", string(evt.StatusClass)),
				zap.Int64("bytes", evt.Bytes),
				zap.Strings("degraded", evt.Degraded),
			)
			s.logger.Debug("task succeeded", fields...)
		case progress.StageTaskFailed:
			fields = append(fields, taskFields(evt)...)
			fields = append(fields,
				zap.String("failure_kind", string(evt.FailureKind)),
				zap.String("note", evt.Note),
			)
			s.logger.Warn("task failed", fields...)
		default:
			if evt.Counts != nil {
				fields = append(fields,
					zap.Int("processed", evt.Counts.Processed),
					zap.Int("succeeded", evt.Counts.Succeeded),
					zap.Int("failed", evt.Counts.Failed),
				)
			}
			fields = append(fields, zap.Duration("dur", evt.Dur), zap.String("note", evt.Note))
			s.logger.Info("run progress", fields...)
		}
	}
	return nil
}

func taskFields(evt progress.Event) []zap.Field {
	return []zap.Field{
		zap.String("entity_id", evt.EntityID),
		zap.String("site", evt.Site),
		zap.String("url", evt.URL),
		zap.Duration("dur", evt.Dur),
	}
}

// Close implements progress.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
