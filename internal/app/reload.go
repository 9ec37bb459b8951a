package app

import (
	"context"
	"strings"

	"listingwatch/internal/config"
	logx "listingwatch/pkg/logx"
)

// reloadLoop applies published configs. Poll timing, logging and the sink
// timeout change live; everything else is reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	// logging first so the lines below use the new level
	a.logs.Apply(mapLogConfig(newCfg))

	if t, err := mapTiming(newCfg); err != nil {
		a.log.Warn("invalid poll config; keeping previous", logx.Err(err))
	} else {
		a.poller.Apply(t)
	}
	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notify config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
