package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"listingwatch/internal/config"
	"listingwatch/internal/listing"
	"listingwatch/internal/notifier"
	"listingwatch/internal/poller"
	logx "listingwatch/pkg/logx"
)

const page = `<html><body>
<section>
  <a class="styles_wrapper__Q06m9" href="/item/101?searchId=s">
    <div class="styles_price__gpHWH"><span class="styles_price__byr__a">900 р.</span></div>
    <div class="styles_parameters__7zKlL">2 комн., 48 м²</div>
    <span class="styles_address__l6Qe_">Независимости пр, 10</span>
  </a>
</section>
<section>
  <a class="styles_wrapper__Q06m9" href="/item/102?searchId=s">
    <div class="styles_parameters__7zKlL">1 комн., 30 м²</div>
    <span class="styles_address__l6Qe_">Сурганова ул, 5</span>
  </a>
</section>
</body></html>`

func noEnv(string) (string, bool) { return "", false }

func listingServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, url string, seed bool, extra string) string {
	t.Helper()
	body := fmt.Sprintf(`source:
  url: %s
  base_url: %s
storage:
  driver: file
  path: %s
poll:
  min_delay: 10ms
  max_delay: 20ms
  seed_on_first_run: %t
logging:
  level: error
%s`, url, url, filepath.Join(dir, "state.json"), seed, extra)
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func newTestApp(t *testing.T, cfgPath string) *App {
	t.Helper()
	a, err := NewApp(cfgPath, WithEnvLookup(noEnv))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func TestRunOnceDetectsThenRemembers(t *testing.T) {
	t.Parallel()
	srv := listingServer(t, nil)
	dir := t.TempDir()
	a := newTestApp(t, writeConfig(t, dir, srv.URL, false, ""))
	ctx := context.Background()

	rep, err := a.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.New != 2 || rep.Delivered != 2 || rep.Seeded {
		t.Fatalf("first cycle = %+v", rep)
	}

	rep, err = a.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.New != 0 || rep.Committed != 2 {
		t.Fatalf("second cycle = %+v", rep)
	}

	b, err := os.ReadFile(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("state file: %v", err)
	}
	if !strings.Contains(string(b), "Сурганова ул, 5") {
		t.Fatalf("state file missing record: %s", b)
	}
}

func TestRunOnceSeedsEmptyHistory(t *testing.T) {
	t.Parallel()
	srv := listingServer(t, nil)
	a := newTestApp(t, writeConfig(t, t.TempDir(), srv.URL, true, ""))

	rep, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !rep.Seeded || rep.Delivered != 0 || rep.Committed != 2 {
		t.Fatalf("seed cycle = %+v", rep)
	}
}

func TestRunOnceReportsFetchFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	a := newTestApp(t, writeConfig(t, t.TempDir(), srv.URL, false, ""))

	rep, err := a.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if rep.Stage != poller.StateFetching {
		t.Fatalf("stage = %s", rep.Stage)
	}
}

func TestNewAppRejectsCorruptStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "https://example.test/list", false, "")
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(cfg, WithEnvLookup(noEnv)); err == nil {
		t.Fatal("expected startup error for corrupt store")
	}
}

// openFDsTo lists this process's descriptors that point at path.
func openFDsTo(t *testing.T, path string) []string {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("no /proc/self/fd: %v", err)
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	var fds []string
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err == nil && target == path {
			fds = append(fds, e.Name())
		}
	}
	return fds
}

func TestNewAppFailureReleasesLogFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "app.log")
	cfg := writeConfig(t, dir, "https://example.test/list", false,
		fmt.Sprintf("  file:\n    enabled: true\n    path: %s\n    min_level: debug\n", logPath))
	// writeConfig sets level error; raise it so startup lines reach the file.
	b, err := os.ReadFile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg, []byte(strings.Replace(string(b), "level: error", "level: debug", 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewApp(cfg, WithEnvLookup(noEnv)); err == nil {
		t.Fatal("expected startup error for corrupt store")
	}
	if fi, err := os.Stat(logPath); err != nil || fi.Size() == 0 {
		t.Fatalf("log file not written before failure: %v", err)
	}
	if fds := openFDsTo(t, logPath); len(fds) != 0 {
		t.Fatalf("log file still open on fds %v after NewApp failed", fds)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "https://example.test/list", false, "notify:\n  telegram:\n    enabled: true\n")
	if _, err := NewApp(cfg, WithEnvLookup(noEnv)); err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Fatalf("NewApp = %v, want telegram validation error", err)
	}
}

func TestStartPollsUntilStopped(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := listingServer(t, &hits)
	a := newTestApp(t, writeConfig(t, t.TempDir(), srv.URL, false, ""))

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for hits.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("poller made %d requests", hits.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st, last := a.Snapshot()
	if st.Cycles < 2 || st.Known != 2 || !last.OK() {
		t.Fatalf("state = %+v, last = %+v", st, last)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestApplyConfigSwapsTiming(t *testing.T) {
	t.Parallel()
	srv := listingServer(t, nil)
	a := newTestApp(t, writeConfig(t, t.TempDir(), srv.URL, false, ""))

	old := a.cfgm.Get()
	next := *old
	next.Poll.MinDelay, next.Poll.MaxDelay = "1m", "2m"
	next.Notify.SinkTimeout = "5s"
	a.applyConfig(old, &next)

	got := a.poller.Timing()
	if got.MinDelay != time.Minute || got.MaxDelay != 2*time.Minute || got.ErrorMinDelay != 30*time.Second {
		t.Fatalf("timing = %+v", got)
	}
}

type heartbeatSink struct {
	mu       sync.Mutex
	statuses []string
	alerts   []string
}

func (h *heartbeatSink) Name() string { return "hb" }
func (h *heartbeatSink) Send(context.Context, listing.Record) error { return nil }

func (h *heartbeatSink) SendError(_ context.Context, msg string) error {
	h.add(&h.alerts, msg)
	return nil
}

func (h *heartbeatSink) SendStatus(_ context.Context, msg string) error {
	h.add(&h.statuses, msg)
	return nil
}

func (h *heartbeatSink) add(dst *[]string, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*dst = append(*dst, msg)
}

func TestHeartbeatIsStatusNotAlert(t *testing.T) {
	t.Parallel()
	srv := listingServer(t, nil)
	a := newTestApp(t, writeConfig(t, t.TempDir(), srv.URL, false, ""))
	hb := &heartbeatSink{}
	a.sinks = []notifier.Sink{hb}

	a.heartbeat(context.Background())
	if len(hb.statuses) != 1 || len(hb.alerts) != 0 {
		t.Fatalf("statuses=%q alerts=%q", hb.statuses, hb.alerts)
	}
	if !strings.Contains(hb.statuses[0], "listingwatch is running") {
		t.Fatalf("status = %q", hb.statuses[0])
	}
	if st := a.notif.Stats(); st.Alerts != 0 || st.Statuses != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestHeartbeatMessage(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := heartbeatMessage(poller.PollState{
		State:               poller.StateSleeping,
		Known:               42,
		Cycles:              7,
		LastSuccess:         now.Add(-90 * time.Second),
		ConsecutiveFailures: 1,
		LastError:           "timeout",
	}, now)
	for _, want := range []string{"42 known", "7 cycles", "sleeping", "1m30s ago", "last error: timeout"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
	if !strings.Contains(heartbeatMessage(poller.PollState{}, now), "No successful poll yet") {
		t.Fatal("missing no-success note")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Storage.Driver, cfg.Storage.Path = "sqlite3", "x.db"
	sc, err := mapStorageConfig(cfg)
	if err != nil || sc.Driver != "sqlite" || sc.BusyTimeout != time.Second {
		t.Fatalf("sqlite = %+v, %v", sc, err)
	}
	cfg.Storage.Path = ""
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("sqlite without path accepted")
	}
	cfg.Storage.Driver = "redis"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestBuildSinksFallsBackToLog(t *testing.T) {
	t.Parallel()
	sinks, err := buildSinks(config.Default(), time.Second, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(sinkNames(sinks), ","); got != "log" {
		t.Fatalf("sinks = %s", got)
	}
}

func TestStatusLine(t *testing.T) {
	t.Parallel()
	ok := statusLine(poller.CycleReport{New: 3, Delivered: 3}, poller.PollState{Known: 10})
	if !strings.Contains(ok, "10 known") || !strings.Contains(ok, "3 new") {
		t.Fatalf("status = %q", ok)
	}
	bad := statusLine(poller.CycleReport{Err: fmt.Errorf("x"), Stage: poller.StateFetching}, poller.PollState{ConsecutiveFailures: 2})
	if !strings.Contains(bad, "failed at fetching (2 consecutive)") {
		t.Fatalf("status = %q", bad)
	}
}
