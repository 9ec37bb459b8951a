package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "listingwatch/pkg/logx"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *stateRecorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *stateRecorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func runWatchdog(t *testing.T, alive func(time.Time) bool, d time.Duration) *stateRecorder {
	t.Helper()
	rec := &stateRecorder{}
	n := &sdNotifier{
		enabled:  true,
		log:      logx.Nop(),
		notify:   rec.notify,
		interval: func() (time.Duration, error) { return 10 * time.Millisecond, nil },
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	n.Watchdog(ctx, alive)
	return rec
}

func TestWatchdogWithholdsPingWhenStalled(t *testing.T) {
	t.Parallel()
	rec := runWatchdog(t, func(time.Time) bool { return false }, 100*time.Millisecond)
	if n := rec.count("WATCHDOG=1"); n != 0 {
		t.Fatalf("pings while stalled = %d, want 0", n)
	}
}

func TestWatchdogPingsWhileAlive(t *testing.T) {
	t.Parallel()
	rec := runWatchdog(t, func(time.Time) bool { return true }, 100*time.Millisecond)
	if n := rec.count("WATCHDOG=1"); n == 0 {
		t.Fatal("no watchdog pings while alive")
	}
}

func TestWatchdogResumesAfterStall(t *testing.T) {
	t.Parallel()
	var ticks atomic.Int64
	alive := func(time.Time) bool { return ticks.Add(1) > 3 }
	rec := runWatchdog(t, alive, 150*time.Millisecond)
	if n := rec.count("WATCHDOG=1"); n == 0 {
		t.Fatal("pings did not resume")
	}
	if n := rec.count("WATCHDOG=1"); int64(n) > ticks.Load()-3 {
		t.Fatalf("pings = %d for %d ticks, stalled ticks were pinged", n, ticks.Load())
	}
}

func TestWatchdogDisabled(t *testing.T) {
	t.Parallel()
	rec := &stateRecorder{}
	n := &sdNotifier{
		enabled:  true,
		log:      logx.Nop(),
		notify:   rec.notify,
		interval: func() (time.Duration, error) { return 0, nil },
	}
	done := make(chan struct{})
	go func() {
		n.Watchdog(context.Background(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not return without WatchdogSec")
	}
}

func TestLiveWithin(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bound := 2 * time.Minute
	tests := []struct {
		name string
		last time.Time
		now  time.Time
		want bool
	}{
		{"fresh activity", start.Add(time.Minute), start.Add(2 * time.Minute), true},
		{"stalled activity", start.Add(time.Minute), start.Add(4 * time.Minute), false},
		{"no activity yet, inside bound", time.Time{}, start.Add(time.Minute), true},
		{"no activity ever", time.Time{}, start.Add(5 * time.Minute), false},
		{"exactly at bound", start, start.Add(bound), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := liveWithin(tt.last, start, tt.now, bound); got != tt.want {
				t.Fatalf("liveWithin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppAliveTracksPollerActivity(t *testing.T) {
	t.Parallel()
	srv := listingServer(t, nil)
	a := newTestApp(t, writeConfig(t, t.TempDir(), srv.URL, false, ""))

	if !a.alive(time.Now()) {
		t.Fatal("fresh app reported stalled")
	}
	if _, err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	last := a.poller.Snapshot().LastActivity
	if last.IsZero() {
		t.Fatal("LastActivity not recorded by a cycle")
	}
	bound := a.stallBound()
	if !a.alive(last.Add(bound)) {
		t.Fatal("alive at the bound should hold")
	}
	if a.alive(last.Add(bound + time.Second)) {
		t.Fatal("stalled snapshot still reported alive")
	}
}
