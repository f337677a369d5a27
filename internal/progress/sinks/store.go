package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/progress"
	"github.com/JakeFAU/job-harvester/internal/store"
)

// StoreSink persists session progress through a store.RunRepository. Page
// deltas of the same run are collapsed so each batch costs one update per run.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order. Pending page deltas of a run are
// written before that run is completed.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]*store.PageDelta)
	order := make([]uuid.UUID, 0)

	flushRun := func(id uuid.UUID) error {
		delta, ok := pending[id]
		if !ok || delta.IsZero() {
			return nil
		}
		delete(pending, id)
		if err := s.repo.AddPageStats(ctx, id, *delta); err != nil {
			return fmt.Errorf("add page stats: %w", err)
		}
		return nil
	}

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSessionStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.Platform, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StagePageDone:
			delta, ok := pending[evt.RunID]
			if !ok {
				delta = &store.PageDelta{}
				pending[evt.RunID] = delta
				order = append(order, evt.RunID)
			}
			delta.Add(store.PageDelta{
				Pages:    1,
				Fetched:  int64(evt.Fetched),
				Dropped:  int64(evt.Dropped),
				Saved:    int64(evt.Saved),
				RawSaved: int64(evt.RawSaved),
			})
		case progress.StageSessionDone, progress.StageSessionError:
			if err := flushRun(evt.RunID); err != nil {
				return err
			}
			if err := s.complete(ctx, evt); err != nil {
				return err
			}
		}
	}
	for _, id := range order {
		if err := flushRun(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	switch {
	case evt.Stage == progress.StageSessionError:
		status = store.RunError
		if evt.Note != "" {
			note = &evt.Note
		}
	case evt.StopReason == "canceled":
		status = store.RunCanceled
	}
	if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, status, evt.StopReason, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
