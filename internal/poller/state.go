package poller

import "time"

// State is the poller's current activity.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StateDetecting
	StateNotifying
	StateSleeping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateDetecting:
		return "detecting"
	case StateNotifying:
		return "notifying"
	case StateSleeping:
		return "sleeping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// PollState is a point-in-time view of the loop.
type PollState struct {
	State               State
	ConsecutiveFailures int
	Cycles              uint64
	LastPoll            time.Time
	LastSuccess         time.Time
	LastError           string
	NextPoll            time.Time
	Known               int
	// LastActivity moves on every state change and after each dispatched
	// record. A loop that is alive never leaves it unchanged for longer than
	// one sleep plus one stage's timeouts.
	LastActivity        time.Time
}

// CycleReport is the outcome of one fetch → notify pass. Stage is where the
// cycle ended; on failure it names the stage that failed.
type CycleReport struct {
	ID           string
	Stage        State
	Err          error
	Pages        int
	Extracted    int
	New          int
	Committed    int
	Delivered    int
	SinkFailures int
	Seeded       bool
	Took         time.Duration
}

func (r CycleReport) OK() bool { return r.Err == nil }
