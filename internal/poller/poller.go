// Package poller runs the fetch → extract → detect → save → notify loop.
//
// One goroutine drives the loop; cycles never overlap. Fetching and sleeping
// are the only blocking points and both observe the context, so cancellation
// stops the loop without touching committed history.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"listingwatch/internal/detector"
	"listingwatch/internal/listing"
	"listingwatch/internal/notifier"
	"listingwatch/internal/source"
	logx "listingwatch/pkg/logx"

	"github.com/google/uuid"
)

var ErrNotLoaded = errors.New("poller: history not loaded")

// Fetcher downloads the first page and its pagination pages.
type Fetcher interface {
	FetchAll(ctx context.Context, url string, links func([]byte) []string) ([]source.Page, error)
}

// Extractor parses one page.
type Extractor interface {
	Extract(raw []byte) []listing.Record
	PaginationLinks(raw []byte) []string
}

// Store persists the full history.
type Store interface {
	Load(ctx context.Context) ([]listing.Record, error)
	Save(ctx context.Context, records []listing.Record) error
}

// Notifier fans records and alerts out to sinks.
type Notifier interface {
	Dispatch(ctx context.Context, rec listing.Record, sinks []notifier.Sink) []notifier.SinkResult
	Alert(ctx context.Context, message string, sinks []notifier.Sink) []notifier.SinkResult
}

type Deps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Store     Store
	Notifier  Notifier
	Sinks     []notifier.Sink
	Log       logx.Logger
}

type Options struct {
	URL    string
	Timing Timing
	// SeedOnFirstRun commits the first cycle's records without notifying
	// when no history exists yet.
	SeedOnFirstRun bool
	// OnCycle is called after every cycle, from the loop goroutine.
	OnCycle func(CycleReport, PollState)
}

type Poller struct {
	deps    Deps
	opts    Options
	log     logx.Logger
	backoff *Backoff
	sleep   func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   PollState
	history []listing.Record
	loaded  bool
	seed    bool
}

func New(deps Deps, opts Options) *Poller {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		deps:    deps,
		opts:    opts,
		log:     log.With(logx.String("comp", "poller")),
		backoff: NewBackoff(opts.Timing),
		sleep:   sleepCtx,
	}
}

// Load reads the committed history. It must succeed before the first cycle;
// a corrupt store is a startup error.
func (p *Poller) Load(ctx context.Context) error {
	recs, err := p.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	usable, dropped := detector.Usable(recs)
	if dropped > 0 {
		p.log.Warn("unusable records dropped from history", logx.Int("dropped", dropped))
	}

	p.mu.Lock()
	p.history = usable
	p.loaded = true
	p.seed = p.opts.SeedOnFirstRun && len(usable) == 0
	p.state.Known = len(usable)
	p.mu.Unlock()

	p.log.Info("history loaded", logx.Int("records", len(usable)), logx.Bool("seeding", p.seed))
	return nil
}

// Apply swaps the timing knobs; the next sleep uses them.
func (p *Poller) Apply(t Timing) { p.backoff.Apply(t) }

func (p *Poller) Timing() Timing { return p.backoff.Timing() }

func (p *Poller) Snapshot() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state.State = s
	p.state.LastActivity = time.Now()
	p.mu.Unlock()
}

// Run loops until ctx is canceled. It returns nil on cancellation and an
// error only when history was never loaded.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	if !loaded {
		return ErrNotLoaded
	}

	for {
		if ctx.Err() != nil {
			p.setState(StateIdle)
			return nil
		}

		rep := p.Cycle(ctx)
		if ctx.Err() != nil && rep.Err != nil {
			p.setState(StateIdle)
			return nil
		}

		p.mu.Lock()
		failures := p.state.ConsecutiveFailures
		p.mu.Unlock()

		dec := p.backoff.Next(rep.OK(), failures)
		if rep.OK() {
			p.log.Info("cycle complete",
				logx.String("cycle", rep.ID),
				logx.Int("pages", rep.Pages),
				logx.Int("extracted", rep.Extracted),
				logx.Int("new", rep.New),
				logx.Int("delivered", rep.Delivered),
				logx.Int("sink_failures", rep.SinkFailures),
				logx.Duration("took", rep.Took),
				logx.Duration("next_in", dec.Delay),
			)
		} else if !dec.Escalate {
			p.log.Warn("cycle failed",
				logx.String("cycle", rep.ID),
				logx.String("stage", rep.Stage.String()),
				logx.Int("consecutive_failures", dec.Failures),
				logx.Duration("retry_in", dec.Delay),
				logx.Err(rep.Err),
			)
		} else {
			p.escalate(ctx, rep, failures+1, dec.Delay)
		}

		p.mu.Lock()
		p.state.ConsecutiveFailures = dec.Failures
		p.state.State = StateSleeping
		p.state.LastActivity = time.Now()
		p.state.NextPoll = p.state.LastActivity.Add(dec.Delay)
		snap := p.state
		p.mu.Unlock()

		if p.opts.OnCycle != nil {
			p.opts.OnCycle(rep, snap)
		}

		if err := p.sleep(ctx, dec.Delay); err != nil {
			p.setState(StateIdle)
			return nil
		}
	}
}

func (p *Poller) escalate(ctx context.Context, rep CycleReport, failures int, cooldown time.Duration) {
	msg := fmt.Sprintf("%d consecutive polling failures; last error at %s stage: %v. Pausing for %s.",
		failures, rep.Stage, rep.Err, cooldown)
	p.log.Error("failure threshold reached; escalating",
		logx.String("cycle", rep.ID),
		logx.Int("consecutive_failures", failures),
		logx.Duration("cooldown", cooldown),
		logx.Err(rep.Err),
	)
	p.deps.Notifier.Alert(ctx, msg, p.deps.Sinks)
}

// Cycle runs one pass and updates the poll state. Sink failures do not fail
// the cycle; fetch and save failures do.
func (p *Poller) Cycle(ctx context.Context) CycleReport {
	start := time.Now()
	rep := CycleReport{ID: uuid.NewString()}
	log := p.log.With(logx.String("cycle", rep.ID))

	p.mu.Lock()
	loaded := p.loaded
	existing := p.history
	seeding := p.seed
	p.state.LastPoll = start
	p.state.Cycles++
	p.mu.Unlock()

	fail := func(stage State, err error) CycleReport {
		rep.Stage = stage
		rep.Err = err
		rep.Took = time.Since(start)
		p.mu.Lock()
		p.state.State = StateError
		p.state.LastError = err.Error()
		p.state.LastActivity = time.Now()
		p.mu.Unlock()
		return rep
	}

	if !loaded {
		return fail(StateIdle, ErrNotLoaded)
	}

	p.setState(StateFetching)
	pages, err := p.deps.Fetcher.FetchAll(ctx, p.opts.URL, p.deps.Extractor.PaginationLinks)
	if err != nil {
		return fail(StateFetching, err)
	}
	rep.Pages = len(pages)

	p.setState(StateExtracting)
	var fresh []listing.Record
	for _, pg := range pages {
		recs := p.deps.Extractor.Extract(pg.Body)
		if len(recs) == 0 && len(pg.Body) > 0 {
			log.Warn("no records found on page; markup may have changed", logx.String("url", pg.URL))
		}
		fresh = append(fresh, recs...)
	}
	rep.Extracted = len(fresh)

	p.setState(StateDetecting)
	newRecs, merged := detector.Detect(existing, fresh)
	rep.New = len(newRecs)

	if err := p.deps.Store.Save(ctx, merged); err != nil {
		return fail(StateDetecting, err)
	}
	rep.Committed = len(merged)

	p.mu.Lock()
	p.history = merged
	p.seed = false
	p.state.Known = len(merged)
	p.mu.Unlock()

	if seeding {
		rep.Seeded = true
		log.Info("first run: history seeded without notifications", logx.Int("records", len(merged)))
	} else if len(newRecs) > 0 {
		p.setState(StateNotifying)
		for _, rec := range newRecs {
			results := p.deps.Notifier.Dispatch(ctx, rec, p.deps.Sinks)
			failed := notifier.Failures(results)
			rep.SinkFailures += failed
			rep.Delivered += len(results) - failed
			p.setState(StateNotifying)
		}
	}

	rep.Stage = StateNotifying
	rep.Took = time.Since(start)
	p.mu.Lock()
	p.state.LastSuccess = time.Now()
	p.state.LastError = ""
	p.mu.Unlock()
	return rep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
