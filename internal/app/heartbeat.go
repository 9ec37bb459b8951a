package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"listingwatch/internal/config"
	"listingwatch/internal/poller"
	logx "listingwatch/pkg/logx"

	"github.com/robfig/cron/v3"
)

// runHeartbeat sends a status report to every sink on the poll.heartbeat
// schedule until ctx is done. An empty schedule disables it.
func (a *App) runHeartbeat(ctx context.Context, spec, tz string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	loc := time.Local
	if tz = strings.TrimSpace(tz); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("poll.timezone: %w", err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(config.CronParser()), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() { a.heartbeat(ctx) }); err != nil {
		return fmt.Errorf("poll.heartbeat: %w", err)
	}
	c.Start()
	a.log.Info("heartbeat scheduled", logx.String("spec", spec), logx.String("tz", loc.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (a *App) heartbeat(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	st := a.poller.Snapshot()
	msg := heartbeatMessage(st, time.Now())
	a.log.Info("heartbeat", logx.String("state", st.State.String()), logx.Int("known", st.Known),
		logx.Int("consecutive_failures", st.ConsecutiveFailures))
	a.notif.Status(ctx, msg, a.sinks)
}

func heartbeatMessage(st poller.PollState, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "listingwatch is running: %d known listings, %d cycles, state %s.", st.Known, st.Cycles, st.State)
	if st.LastSuccess.IsZero() {
		b.WriteString(" No successful poll yet.")
	} else {
		fmt.Fprintf(&b, " Last successful poll %s ago.", now.Sub(st.LastSuccess).Round(time.Second))
	}
	if st.ConsecutiveFailures > 0 {
		fmt.Fprintf(&b, " %d consecutive failures, last error: %s.", st.ConsecutiveFailures, st.LastError)
	}
	return b.String()
}
