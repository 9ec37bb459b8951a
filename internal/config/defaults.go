package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultURL     = "https://re.kufar.by/l/minsk/snyat/kvartiru-dolgosrochno"
	DefaultBaseURL = "https://re.kufar.by"
)

// Default returns a complete configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields. Explicit values are kept.
func (c *Config) ApplyDefaults() {
	setStr := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}

	setStr(&c.Source.URL, DefaultURL)
	setStr(&c.Source.BaseURL, DefaultBaseURL)
	setStr(&c.Source.Timeout, "30s")
	if c.Source.MaxPages <= 0 {
		c.Source.MaxPages = 1
	}
	setStr(&c.Source.PageDelayMin, "3s")
	setStr(&c.Source.PageDelayMax, "7s")

	setStr(&c.Storage.Driver, "file")
	setStr(&c.Storage.Path, "listings_data.json")
	setStr(&c.Storage.BusyTimeout, "1s")

	setStr(&c.Poll.MinDelay, "55s")
	setStr(&c.Poll.MaxDelay, "65s")
	if c.Poll.MaxConsecutiveFailures <= 0 {
		c.Poll.MaxConsecutiveFailures = 3
	}
	setStr(&c.Poll.Cooldown, "300s")
	if c.Poll.SeedOnFirstRun == nil {
		seed := true
		c.Poll.SeedOnFirstRun = &seed
	}

	setStr(&c.Notify.SinkTimeout, "30s")
	if c.Notify.Telegram.RatePerSec <= 0 {
		c.Notify.Telegram.RatePerSec = 1
	}
	setStr(&c.Notify.Email.TLS, "mandatory")
	if c.Notify.Email.Port <= 0 {
		c.Notify.Email.Port = 587
	}
	setStr(&c.Notify.Email.SubjectPrefix, "[listingwatch]")

	setStr(&c.Logging.Level, "info")
	setStr(&c.Logging.File.Path, "./logs/error.log")
	setStr(&c.Logging.File.MinLevel, "error")
	if c.Logging.File.MaxSizeMB <= 0 {
		c.Logging.File.MaxSizeMB = 5
	}
	if c.Logging.File.MaxBackups <= 0 {
		c.Logging.File.MaxBackups = 5
	}
}

// Validate checks a config after defaults and environment overrides.
// It reports every problem at once.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) time.Duration {
		d, err := ParseDurationField(path, raw)
		add(err)
		return d
	}

	u, err := url.Parse(strings.TrimSpace(c.Source.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add(fmt.Errorf("source.url: want an absolute http(s) URL, got %q", c.Source.URL))
	}
	if c.Source.BaseURL != "" {
		if b, err := url.Parse(c.Source.BaseURL); err != nil || b.Host == "" {
			add(fmt.Errorf("source.base_url: invalid URL %q", c.Source.BaseURL))
		}
	}
	dur("source.timeout", c.Source.Timeout)
	pmin := dur("source.page_delay_min", c.Source.PageDelayMin)
	pmax := dur("source.page_delay_max", c.Source.PageDelayMax)
	if pmax < pmin {
		add(errors.New("source.page_delay_max must be >= page_delay_min"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q (want file or sqlite)", c.Storage.Driver))
	}
	dur("storage.busy_timeout", c.Storage.BusyTimeout)

	lo := dur("poll.min_delay", c.Poll.MinDelay)
	hi := dur("poll.max_delay", c.Poll.MaxDelay)
	if hi < lo {
		add(errors.New("poll.max_delay must be >= min_delay"))
	}
	emin := dur("poll.error_min_delay", c.Poll.ErrorMinDelay)
	emax := dur("poll.error_max_delay", c.Poll.ErrorMaxDelay)
	if emax > 0 && emax < emin {
		add(errors.New("poll.error_max_delay must be >= error_min_delay"))
	}
	dur("poll.cooldown", c.Poll.Cooldown)
	if c.Poll.MaxConsecutiveFailures < 0 {
		add(errors.New("poll.max_consecutive_failures must be >= 0"))
	}
	if spec := strings.TrimSpace(c.Poll.Heartbeat); spec != "" {
		if _, err := CronParser().Parse(spec); err != nil {
			add(fmt.Errorf("poll.heartbeat: %w", err))
		}
	}
	if tz := strings.TrimSpace(c.Poll.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("poll.timezone: %w", err))
		}
	}

	dur("notify.sink_timeout", c.Notify.SinkTimeout)
	if tg := c.Notify.Telegram; tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			add(errors.New("notify.telegram.token is required when telegram is enabled (or set BOT_TOKEN)"))
		}
		if tg.ChatID == 0 {
			add(errors.New("notify.telegram.chat_id is required when telegram is enabled (or set CHAT_ID)"))
		}
	}
	if em := c.Notify.Email; em.Enabled {
		if strings.TrimSpace(em.Host) == "" || strings.TrimSpace(em.From) == "" || len(em.To) == 0 {
			add(errors.New("notify.email: host, from and to are required when email is enabled"))
		}
	}
	return errors.Join(errs...)
}

// CronParser accepts an optional seconds field and descriptors (@every, @daily).
func CronParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ParseDurationField parses a duration setting named by path. Blank means
// zero. Negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration (try \"30s\" or \"5m\"): %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def standing in for a
// blank or zero value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
