package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/progress"
)

// LogSink writes one structured line per event. Page events go to debug,
// session boundaries to info, failures to error.
type LogSink struct {
	logger *zap.Logger
}

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
			zap.String("run_id", evt.RunID.String()),
			zap.String("platform", evt.Platform),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StagePageDone:
			s.logger.Debug("page done", append(fields,
				zap.String("cursor", evt.Cursor),
				zap.Int("listed", evt.Listed),
				zap.Int("targets", evt.Targets),
				zap.Int("fetched", evt.Fetched),
				zap.Int("dropped", evt.Dropped),
				zap.Int("saved", evt.Saved),
				zap.Int("raw_saved", evt.RawSaved),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageSessionError:
			s.logger.Error("session failed", append(fields,
				zap.String("stop_reason", evt.StopReason),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		default:
			s.logger.Info("session event", append(fields,
				zap.String("stop_reason", evt.StopReason),
				zap.Duration("dur", evt.Dur),
			)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
