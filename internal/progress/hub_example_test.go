package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type savedCounter struct {
	saved int
}

func (s *savedCounter) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		s.saved += evt.Saved
	}
	return nil
}

func (s *savedCounter) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting page events and flushing via Close.
func ExampleHub_Emit() {
	sink := &savedCounter{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	runID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	for _, saved := range []int{20, 7} {
		hub.Emit(Event{
			RunID:    runID,
			Platform: "SARAMIN",
			TS:       time.Unix(0, 0),
			Stage:    StagePageDone,
			Saved:    saved,
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("jobs saved: %d\n", sink.saved)
	// Output:
	// jobs saved: 27
}
