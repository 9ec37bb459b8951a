package config

import (
	"reflect"
	"strings"

	logx "listingwatch/pkg/logx"
)

// Sections applied live on reload. Everything else needs a restart.
var liveSections = map[string]bool{"poll": true, "logging": true, "notify.timeout": true}

// SummarizeConfigChange returns the changed sections, safe log attributes
// (secrets are reported only as set/unset) and the changed sections that
// only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
		if !liveSections[section] {
			restart = append(restart, section)
		}
	}

	if !reflect.DeepEqual(oldCfg.Source, newCfg.Source) {
		mark("source",
			logx.String("source.url", newCfg.Source.URL),
			logx.Int("source.max_pages", newCfg.Source.MaxPages),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if !reflect.DeepEqual(oldCfg.Poll, newCfg.Poll) {
		mark("poll",
			logx.String("poll.min_delay", newCfg.Poll.MinDelay),
			logx.String("poll.max_delay", newCfg.Poll.MaxDelay),
			logx.Int("poll.max_consecutive_failures", newCfg.Poll.MaxConsecutiveFailures),
			logx.String("poll.cooldown", newCfg.Poll.Cooldown),
		)
		if strings.TrimSpace(oldCfg.Poll.Heartbeat) != strings.TrimSpace(newCfg.Poll.Heartbeat) ||
			oldCfg.Poll.Timezone != newCfg.Poll.Timezone {
			restart = append(restart, "poll.heartbeat")
		}
	}
	if oldCfg.Notify.SinkTimeout != newCfg.Notify.SinkTimeout {
		mark("notify.timeout", logx.String("notify.sink_timeout", newCfg.Notify.SinkTimeout))
	}
	oldSinks, newSinks := oldCfg.Notify, newCfg.Notify
	oldSinks.SinkTimeout, newSinks.SinkTimeout = "", ""
	if !reflect.DeepEqual(oldSinks, newSinks) {
		mark("notify.sinks",
			logx.Bool("notify.telegram.enabled", newCfg.Notify.Telegram.Enabled),
			logx.Bool("notify.telegram.token_set", newCfg.Notify.Telegram.Token != ""),
			logx.Bool("notify.email.enabled", newCfg.Notify.Email.Enabled),
			logx.Bool("notify.email.password_set", newCfg.Notify.Email.Password != ""),
			logx.Bool("notify.log.enabled", newCfg.Notify.Log.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		mark("systemd", logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}
	return changed, attrs, restart
}
