package app

import (
	"fmt"
	"strings"
	"time"

	"listingwatch/internal/config"
	"listingwatch/internal/extract"
	"listingwatch/internal/notifier"
	"listingwatch/internal/notifier/email"
	"listingwatch/internal/notifier/logsink"
	"listingwatch/internal/notifier/telegram"
	"listingwatch/internal/poller"
	"listingwatch/internal/source"
	"listingwatch/internal/storage"
	logx "listingwatch/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file", "json":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSourceConfig(cfg *config.Config) (source.Config, error) {
	sc := cfg.Source
	timeout, err := config.ParseDurationOrDefault("source.timeout", sc.Timeout, 30*time.Second)
	if err != nil {
		return source.Config{}, err
	}
	pmin, err := config.ParseDurationField("source.page_delay_min", sc.PageDelayMin)
	if err != nil {
		return source.Config{}, err
	}
	pmax, err := config.ParseDurationField("source.page_delay_max", sc.PageDelayMax)
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{
		Timeout:      timeout,
		MaxPages:     sc.MaxPages,
		PageDelayMin: pmin,
		PageDelayMax: pmax,
		UserAgents:   sc.UserAgents,
	}, nil
}

// Empty selector fields fall back to the extractor defaults.
func mapSelectors(cfg *config.Config) extract.Selectors {
	s := cfg.Source.Selectors
	return extract.Selectors{
		Card:           s.Card,
		Anchor:         s.Anchor,
		Description:    s.Description,
		Price:          s.Price,
		Address:        s.Address,
		Image:          s.Image,
		Pagination:     s.Pagination,
		PrimaryClass:   s.PrimaryClass,
		SecondaryClass: s.SecondaryClass,
		PerUnitClass:   s.PerUnitClass,
	}
}

func mapTiming(cfg *config.Config) (poller.Timing, error) {
	pc := cfg.Poll
	var t poller.Timing
	var err error
	parse := func(dst *time.Duration, path, raw string) {
		if err != nil {
			return
		}
		*dst, err = config.ParseDurationField(path, raw)
	}
	parse(&t.MinDelay, "poll.min_delay", pc.MinDelay)
	parse(&t.MaxDelay, "poll.max_delay", pc.MaxDelay)
	parse(&t.ErrorMinDelay, "poll.error_min_delay", pc.ErrorMinDelay)
	parse(&t.ErrorMaxDelay, "poll.error_max_delay", pc.ErrorMaxDelay)
	parse(&t.Cooldown, "poll.cooldown", pc.Cooldown)
	if err != nil {
		return poller.Timing{}, err
	}
	t.MaxConsecutiveFailures = pc.MaxConsecutiveFailures
	return t.Normalize(), nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	d, err := config.ParseDurationOrDefault("notify.sink_timeout", cfg.Notify.SinkTimeout, 30*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{SinkTimeout: d}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MinLevel:   cfg.Logging.File.MinLevel,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
		},
	}
}

// buildSinks constructs the enabled sinks. With none enabled the log sink
// is used so new listings are never silently dropped.
func buildSinks(cfg *config.Config, sinkTimeout time.Duration, log logx.Logger) ([]notifier.Sink, error) {
	var sinks []notifier.Sink
	nc := cfg.Notify

	if nc.Telegram.Enabled {
		s, err := telegram.New(telegram.Config{
			Token:        nc.Telegram.Token,
			ChatID:       nc.Telegram.ChatID,
			ThreadID:     nc.Telegram.ThreadID,
			RatePerSec:   nc.Telegram.RatePerSec,
			LinkTemplate: nc.Telegram.LinkTemplate,
			Timeout:      sinkTimeout,
		}, log.With(logx.String("sink", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if nc.Email.Enabled {
		s, err := email.New(email.Config{
			Host:          nc.Email.Host,
			Port:          nc.Email.Port,
			Username:      nc.Email.Username,
			Password:      nc.Email.Password,
			From:          nc.Email.From,
			To:            nc.Email.To,
			SubjectPrefix: nc.Email.SubjectPrefix,
			TLS:           nc.Email.TLS,
			Timeout:       sinkTimeout,
		}, log.With(logx.String("sink", "email")))
		if err != nil {
			return nil, fmt.Errorf("email sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if nc.Log.Enabled || len(sinks) == 0 {
		sinks = append(sinks, logsink.New(log.With(logx.String("sink", "log"))))
	}
	return sinks, nil
}

func sinkNames(sinks []notifier.Sink) []string {
	out := make([]string, 0, len(sinks))
	for _, s := range sinks {
		out = append(out, s.Name())
	}
	return out
}
