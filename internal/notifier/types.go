package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listingwatch/internal/listing"
)

var (
	ErrNoSinks   = errors.New("no notification sinks configured")
	ErrSinkPanic = errors.New("sink panicked")
)

// Sink delivers records and operator alerts to one channel.
// Implementations must honor ctx.
type Sink interface {
	Name() string
	Send(ctx context.Context, rec listing.Record) error
	SendError(ctx context.Context, message string) error
}

// StatusSink is implemented by sinks that render routine status reports
// (heartbeats) differently from alerts. Sinks without it get SendError.
type StatusSink interface {
	SendStatus(ctx context.Context, message string) error
}

// SinkResult is the outcome of one sink for one record or alert.
type SinkResult struct {
	Sink string
	Err  error
	Took time.Duration
}

// SinkError wraps a delivery failure with the sink name.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink %s: %v", e.Sink, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// Config controls dispatch.
type Config struct {
	// SinkTimeout bounds a single Send/SendError call.
	SinkTimeout time.Duration
}

// Stats are cumulative dispatch counters.
type Stats struct {
	Delivered uint64
	Failed    uint64
	Alerts    uint64
	Statuses  uint64
	LastSent  time.Time
}

// Failures counts the failed results.
func Failures(results []SinkResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
