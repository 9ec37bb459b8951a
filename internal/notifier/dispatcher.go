package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"

	"golang.org/x/sync/errgroup"
)

const defaultSinkTimeout = 30 * time.Second

// Dispatcher runs per-record fan-out. It is safe for concurrent use.
type Dispatcher struct {
	log logx.Logger

	mu    sync.Mutex
	cfg   Config
	stats Stats
}

func New(cfg Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{log: log}
	d.Apply(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Dispatch delivers rec to every sink concurrently and returns one result per
// sink, in sink order. It returns once every sink has finished or timed out.
func (d *Dispatcher) Dispatch(ctx context.Context, rec listing.Record, sinks []Sink) []SinkResult {
	results := d.fanOut(ctx, sinks, func(c context.Context, s Sink) error {
		return s.Send(c, rec)
	})

	d.mu.Lock()
	for _, r := range results {
		if r.Err != nil {
			d.stats.Failed++
		} else {
			d.stats.Delivered++
		}
	}
	if len(results) > Failures(results) {
		d.stats.LastSent = time.Now()
	}
	d.mu.Unlock()

	for _, r := range results {
		if r.Err != nil {
			d.log.Warn("notification failed",
				logx.String("sink", r.Sink),
				logx.String("record", rec.Key()),
				logx.Duration("took", r.Took),
				logx.Err(r.Err),
			)
			continue
		}
		d.log.Debug("notification sent",
			logx.String("sink", r.Sink),
			logx.String("record", rec.Key()),
			logx.Duration("took", r.Took),
		)
	}
	return results
}

// Alert sends message through every sink's SendError. Best-effort: failures
// are logged and returned, never escalated further.
func (d *Dispatcher) Alert(ctx context.Context, message string, sinks []Sink) []SinkResult {
	if len(sinks) == 0 {
		d.log.Warn("alert not delivered", logx.String("message", message), logx.Err(ErrNoSinks))
		return []SinkResult{}
	}
	results := d.fanOut(ctx, sinks, func(c context.Context, s Sink) error {
		return s.SendError(c, message)
	})

	d.mu.Lock()
	d.stats.Alerts++
	d.mu.Unlock()

	for _, r := range results {
		if r.Err != nil {
			d.log.Error("alert failed", logx.String("sink", r.Sink), logx.Err(r.Err))
		}
	}
	return results
}

// Status sends a routine report such as a heartbeat. Sinks implementing
// StatusSink get SendStatus; the rest fall back to SendError. Failures are
// logged at warn and do not count as alerts.
func (d *Dispatcher) Status(ctx context.Context, message string, sinks []Sink) []SinkResult {
	if len(sinks) == 0 {
		d.log.Warn("status not delivered", logx.String("message", message), logx.Err(ErrNoSinks))
		return []SinkResult{}
	}
	results := d.fanOut(ctx, sinks, func(c context.Context, s Sink) error {
		if ss, ok := s.(StatusSink); ok {
			return ss.SendStatus(c, message)
		}
		return s.SendError(c, message)
	})

	d.mu.Lock()
	d.stats.Statuses++
	d.mu.Unlock()

	for _, r := range results {
		if r.Err != nil {
			d.log.Warn("status failed", logx.String("sink", r.Sink), logx.Err(r.Err))
		}
	}
	return results
}

func (d *Dispatcher) fanOut(ctx context.Context, sinks []Sink, call func(context.Context, Sink) error) []SinkResult {
	results := make([]SinkResult, len(sinks))
	if len(sinks) == 0 {
		return results
	}

	d.mu.Lock()
	timeout := d.cfg.SinkTimeout
	d.mu.Unlock()

	// Plain Group: a failing sink must not cancel its siblings.
	var g errgroup.Group
	for i, s := range sinks {
		i, s := i, s
		g.Go(func() error {
			results[i] = runSink(ctx, s, timeout, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runSink bounds one call by timeout even if the sink ignores its context;
// an abandoned call finishes in the background.
func runSink(ctx context.Context, s Sink, timeout time.Duration, call func(context.Context, Sink) error) SinkResult {
	name := s.Name()
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrSinkPanic, r)
			}
		}()
		done <- call(cctx, s)
	}()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = cctx.Err()
	}
	res := SinkResult{Sink: name, Took: time.Since(start)}
	if err != nil {
		res.Err = &SinkError{Sink: name, Err: err}
	}
	return res
}
