package app

import (
	"context"
	"fmt"
	"time"

	"listingwatch/internal/poller"
	logx "listingwatch/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotifier reports lifecycle and status to systemd. Every method is a
// no-op when disabled or when NOTIFY_SOCKET is not set.
type sdNotifier struct {
	enabled  bool
	log      logx.Logger
	notify   func(state string) (bool, error)
	interval func() (time.Duration, error)
}

func newSDNotifier(enabled bool, log logx.Logger) *sdNotifier {
	return &sdNotifier{
		enabled:  enabled,
		log:      log,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		interval: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
	}
}

func (n *sdNotifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := n.notify(state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !sent {
		n.log.Trace("sd_notify skipped (no NOTIFY_SOCKET)", logx.String("state", state))
	}
}

func (n *sdNotifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *sdNotifier) Stopping() { n.send(daemon.SdNotifyStopping) }
func (n *sdNotifier) Status(s string) {
	n.send("STATUS=" + s)
}

// Cycle publishes a one-line status and pings the watchdog.
func (n *sdNotifier) Cycle(rep poller.CycleReport, st poller.PollState) {
	if n == nil || !n.enabled {
		return
	}
	n.Status(statusLine(rep, st))
	n.send(daemon.SdNotifyWatchdog)
}

// Watchdog pings at half the configured WatchdogSec until ctx is done, but
// only while alive reports the polling loop as making progress. A hung loop
// stops the pings and lets systemd restart the unit. It returns at once when
// the unit has no watchdog.
func (n *sdNotifier) Watchdog(ctx context.Context, alive func(now time.Time) bool) {
	if n == nil || !n.enabled || n.interval == nil {
		return
	}
	every, err := n.interval()
	if err != nil || every <= 0 {
		return
	}
	n.log.Debug("systemd watchdog enabled", logx.Duration("interval", every))
	t := time.NewTicker(every / 2)
	defer t.Stop()
	stalled := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if alive != nil && !alive(now) {
				if !stalled {
					n.log.Warn("poller shows no progress; withholding watchdog ping")
				}
				stalled = true
				continue
			}
			if stalled {
				n.log.Info("poller progressing again; watchdog pings resumed")
				stalled = false
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

// liveWithin reports whether last (or start, before any activity) lies no
// further than bound before now.
func liveWithin(last, start, now time.Time, bound time.Duration) bool {
	if last.IsZero() {
		last = start
	}
	return now.Sub(last) <= bound
}

func statusLine(rep poller.CycleReport, st poller.PollState) string {
	if !rep.OK() {
		return fmt.Sprintf("%d known; last cycle failed at %s (%d consecutive)",
			st.Known, rep.Stage, st.ConsecutiveFailures)
	}
	return fmt.Sprintf("%d known; last cycle: %d new, %d delivered; next poll %s",
		st.Known, rep.New, rep.Delivered, st.NextPoll.Format(time.TimeOnly))
}
