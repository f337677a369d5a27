package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Session milestones.
const (
	StageSessionStart Stage = "SESSION_START"
	StagePageDone     Stage = "PAGE_DONE"
	StageSessionDone  Stage = "SESSION_DONE"
	StageSessionError Stage = "SESSION_ERROR"
)

// Event is one milestone of a source session. Page counters are deltas for
// that page; terminal events carry no counters.
type Event struct {
	RunID    uuid.UUID
	Platform string
	TS       time.Time
	Stage    Stage

	// Cursor renders the listing position of a PAGE_DONE event.
	Cursor string
	// Listed is the number of ids on the page, Targets those that needed a fetch.
	Listed  int
	Targets int
	Fetched int
	Dropped int
	Saved   int
	// RawSaved counts envelopes newly written to the raw store.
	RawSaved int

	// StopReason is set on terminal events.
	StopReason string
	// Dur is the page or session wall time.
	Dur time.Duration
	// Note carries the error text of SESSION_ERROR.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Platform == "" {
		return errors.New("platform is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionDone, StageSessionError:
	case StagePageDone:
		if e.Listed < 0 || e.Targets < 0 || e.Fetched < 0 || e.Dropped < 0 || e.Saved < 0 || e.RawSaved < 0 {
			return errors.New("page counters must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes a session.
func (e Event) Terminal() bool {
	return e.Stage == StageSessionDone || e.Stage == StageSessionError
}
