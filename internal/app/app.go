// Package app builds the watcher from its config file and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"listingwatch/internal/config"
	"listingwatch/internal/extract"
	"listingwatch/internal/notifier"
	"listingwatch/internal/poller"
	"listingwatch/internal/runtime/supervisor"
	"listingwatch/internal/source"
	"listingwatch/internal/storage"
	logx "listingwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store  storage.Store
	notif  *notifier.Dispatcher
	sinks  []notifier.Sink
	poller *poller.Poller
	sd     *sdNotifier

	src       source.Config
	createdAt time.Time

	mu   sync.Mutex
	last poller.CycleReport

	closeOnce sync.Once
}

type options struct {
	envFile   string
	envLookup func(string) (string, bool)
	client    *http.Client
}

type Option func(*options)

// WithEnvFile loads KEY=VALUE pairs from path before the config is parsed.
// A missing file is ignored.
func WithEnvFile(path string) Option { return func(o *options) { o.envFile = path } }

// WithEnvLookup replaces os.LookupEnv for config overrides.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(o *options) { o.envLookup = fn }
}

// WithHTTPClient sets the client used to fetch listing pages.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

// NewApp loads the config, opens the history store and builds every
// component. History is loaded here, so an unreadable store fails startup.
func NewApp(cfgPath string, opts ...Option) (_ *App, err error) {
	o := options{envLookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}
	if err := config.LoadDotenv(o.envFile); err != nil {
		return nil, err
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetEnvLookup(o.envLookup)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Everything opened from here on is released if construction fails.
	var cleanup []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i]()
		}
	}()

	logSvc, root := logx.New(mapLogConfig(cfg))
	cleanup = append(cleanup, logSvc.Close)
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	log := root.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	srcCfg, err := mapSourceConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	timing, err := mapTiming(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, store.Close)
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	fetcher := source.New(srcCfg, root.With(logx.String("comp", "source")))
	if o.client != nil {
		fetcher = fetcher.WithClient(o.client)
	}
	ex := extract.New(mapSelectors(cfg), cfg.Source.BaseURL, root.With(logx.String("comp", "extract")))

	nlog := root.With(logx.String("comp", "notifier"))
	sinks, err := buildSinks(cfg, ncfg.SinkTimeout, nlog)
	if err != nil {
		return nil, err
	}
	log.Info("sinks ready", logx.Strs("sinks", sinkNames(sinks)))

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		store:     store,
		notif:     notifier.New(ncfg, nlog),
		sinks:     sinks,
		sd:        newSDNotifier(cfg.Systemd.Notify, root.With(logx.String("comp", "systemd"))),
		src:       srcCfg,
		createdAt: time.Now(),
	}
	a.poller = poller.New(poller.Deps{
		Fetcher:   fetcher,
		Extractor: ex,
		Store:     store,
		Notifier:  a.notif,
		Sinks:     sinks,
		Log:       root,
	}, poller.Options{
		URL:            cfg.Source.URL,
		Timing:         timing,
		SeedOnFirstRun: cfg.Poll.SeedOnFirstRun != nil && *cfg.Poll.SeedOnFirstRun,
		OnCycle:        a.onCycle,
	})

	if err := a.poller.Load(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) onCycle(rep poller.CycleReport, st poller.PollState) {
	a.mu.Lock()
	a.last = rep
	a.mu.Unlock()
	a.sd.Cycle(rep, st)
}

// Snapshot returns the poller state and the last cycle report.
func (a *App) Snapshot() (poller.PollState, poller.CycleReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.poller.Snapshot(), a.last
}

// stallBound is the longest gap a healthy polling loop can leave between two
// activity marks: the longest sleep plus one full fetch and one sink round.
func (a *App) stallBound() time.Duration {
	t := a.poller.Timing()
	sleep := max(t.MaxDelay, t.ErrorMaxDelay, t.Cooldown)
	pages := time.Duration(max(a.src.MaxPages, 1))
	fetch := pages*a.src.Timeout + (pages-1)*a.src.PageDelayMax
	sink := 30 * time.Second
	if nc, err := mapNotifierConfig(a.cfgm.Get()); err == nil && nc.SinkTimeout > 0 {
		sink = nc.SinkTimeout
	}
	return sleep + fetch + sink
}

// alive reports whether the polling loop has shown activity within stallBound.
func (a *App) alive(now time.Time) bool {
	return liveWithin(a.poller.Snapshot().LastActivity, a.createdAt, now, a.stallBound())
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the polling loop, config watcher, reload handler and the
// optional heartbeat and watchdog under one supervisor.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	// transactional config reload: the new config must map cleanly before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if _, err := mapStorageConfig(c); err != nil {
			return err
		}
		if _, err := mapSourceConfig(c); err != nil {
			return err
		}
		if _, err := mapTiming(c); err != nil {
			return err
		}
		_, err := mapNotifierConfig(c)
		return err
	})

	a.sup.GoRestart("poller", a.poller.Run,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	spec, tz := cfg.Poll.Heartbeat, cfg.Poll.Timezone
	a.sup.Go("heartbeat", func(c context.Context) error {
		return a.runHeartbeat(c, spec, tz)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		a.sd.Watchdog(c, a.alive)
	})

	a.sd.Ready()
	a.sd.Status(fmt.Sprintf("watching %s", cfg.Source.URL))
	a.log.Info("app started",
		logx.String("url", cfg.Source.URL),
		logx.String("config", a.cfgPath),
		logx.Strs("sinks", sinkNames(a.sinks)),
	)
	return nil
}

// RunOnce runs a single cycle without starting the loop. The returned
// error is the cycle's failure, if any.
func (a *App) RunOnce(ctx context.Context) (poller.CycleReport, error) {
	rep := a.poller.Cycle(ctx)
	a.mu.Lock()
	a.last = rep
	a.mu.Unlock()
	if !rep.OK() {
		a.log.Error("cycle failed", logx.String("cycle", rep.ID), logx.String("stage", rep.Stage.String()), logx.Err(rep.Err))
		return rep, rep.Err
	}
	a.log.Info("cycle complete",
		logx.String("cycle", rep.ID),
		logx.Int("pages", rep.Pages),
		logx.Int("extracted", rep.Extracted),
		logx.Int("new", rep.New),
		logx.Int("delivered", rep.Delivered),
		logx.Bool("seeded", rep.Seeded),
		logx.Duration("took", rep.Took),
	)
	return rep, nil
}

// Stop cancels every goroutine, waits for them within ctx and then closes
// the store and log outputs. It is safe to call more than once and also
// after RunOnce without Start.
func (a *App) Stop(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		start := time.Now()
		a.sd.Stopping()
		if a.sup != nil {
			a.log.Info("stopping")
			if werr := a.sup.Stop(ctx); werr != nil {
				err = werr
			}
		}
		// The poller has exited (or ctx expired); no writer is left.
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("store close failed", logx.Err(cerr))
			err = errors.Join(err, cerr)
		}
		a.log.Info("stopped", logx.Duration("took", time.Since(start)))
		_ = a.logs.Close()
	})
	return err
}
