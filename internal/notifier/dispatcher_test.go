package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"
)

type fakeSink struct {
	name  string
	delay time.Duration
	err   error
	panic bool
	block bool // ignore ctx entirely

	mu     sync.Mutex
	sent   []listing.Record
	alerts []string
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(ctx context.Context, rec listing.Record) error {
	if f.panic {
		panic("boom")
	}
	if f.block {
		select {}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, rec)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) SendError(ctx context.Context, msg string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.alerts = append(f.alerts, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestDispatchFanOutIsolation(t *testing.T) {
	t.Parallel()
	failing := &fakeSink{name: "failing", err: errors.New("unreachable")}
	ok := &fakeSink{name: "ok"}
	d := New(Config{SinkTimeout: time.Second}, logx.Nop())

	res := d.Dispatch(context.Background(), listing.Record{ID: "1", Address: "A1"}, []Sink{failing, ok})
	if len(res) != 2 {
		t.Fatalf("results = %d", len(res))
	}
	if res[0].Sink != "failing" || res[0].Err == nil {
		t.Fatalf("result[0] = %+v", res[0])
	}
	var se *SinkError
	if !errors.As(res[0].Err, &se) || se.Sink != "failing" {
		t.Fatalf("result[0].Err = %v, want SinkError", res[0].Err)
	}
	if res[1].Sink != "ok" || res[1].Err != nil {
		t.Fatalf("result[1] = %+v", res[1])
	}
	if ok.count() != 1 {
		t.Fatalf("ok sink got %d records", ok.count())
	}
	st := d.Stats()
	if st.Delivered != 1 || st.Failed != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestDispatchRunsSinksConcurrently(t *testing.T) {
	t.Parallel()
	sinks := []Sink{
		&fakeSink{name: "a", delay: 150 * time.Millisecond},
		&fakeSink{name: "b", delay: 150 * time.Millisecond},
		&fakeSink{name: "c", delay: 150 * time.Millisecond},
	}
	d := New(Config{SinkTimeout: 5 * time.Second}, logx.Nop())
	start := time.Now()
	res := d.Dispatch(context.Background(), listing.Record{ID: "1"}, sinks)
	if took := time.Since(start); took > 400*time.Millisecond {
		t.Fatalf("dispatch took %v; sinks ran sequentially?", took)
	}
	if Failures(res) != 0 {
		t.Fatalf("unexpected failures: %+v", res)
	}
}

func TestDispatchTimeoutAndPanicAreFailures(t *testing.T) {
	t.Parallel()
	slow := &fakeSink{name: "slow", block: true}
	bad := &fakeSink{name: "bad", panic: true}
	good := &fakeSink{name: "good"}
	d := New(Config{SinkTimeout: 50 * time.Millisecond}, logx.Nop())

	res := d.Dispatch(context.Background(), listing.Record{ID: "1"}, []Sink{slow, bad, good})
	if !errors.Is(res[0].Err, context.DeadlineExceeded) {
		t.Fatalf("slow = %v, want deadline exceeded", res[0].Err)
	}
	if !errors.Is(res[1].Err, ErrSinkPanic) {
		t.Fatalf("bad = %v, want ErrSinkPanic", res[1].Err)
	}
	if res[2].Err != nil || good.count() != 1 {
		t.Fatalf("good = %+v", res[2])
	}
	if Failures(res) != 2 {
		t.Fatalf("Failures = %d", Failures(res))
	}
}

func TestDispatchNoSinks(t *testing.T) {
	t.Parallel()
	d := New(Config{}, logx.Nop())
	res := d.Dispatch(context.Background(), listing.Record{ID: "1"}, nil)
	if res == nil || len(res) != 0 {
		t.Fatalf("results = %#v, want empty", res)
	}
}

func TestAlertReachesEverySink(t *testing.T) {
	t.Parallel()
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b", err: errors.New("down")}
	d := New(Config{}, logx.Nop())

	res := d.Alert(context.Background(), "3 consecutive failures", []Sink{a, b})
	if len(res) != 2 {
		t.Fatalf("results = %d", len(res))
	}
	if len(a.alerts) != 1 || !strings.Contains(a.alerts[0], "consecutive") {
		t.Fatalf("alerts = %v", a.alerts)
	}
	if res[1].Err == nil {
		t.Fatal("failing alert sink reported success")
	}
	if d.Stats().Alerts != 1 {
		t.Fatalf("stats = %+v", d.Stats())
	}
}

type statusSink struct {
	fakeSink
	statuses []string
}

func (s *statusSink) SendStatus(ctx context.Context, msg string) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, msg)
	s.mu.Unlock()
	return nil
}

func TestStatusPrefersStatusSink(t *testing.T) {
	t.Parallel()
	withStatus := &statusSink{fakeSink: fakeSink{name: "status"}}
	plain := &fakeSink{name: "plain"}
	d := New(Config{SinkTimeout: time.Second}, logx.Nop())

	res := d.Status(context.Background(), "running", []Sink{withStatus, plain})
	if len(res) != 2 || Failures(res) != 0 {
		t.Fatalf("results = %+v", res)
	}
	if len(withStatus.statuses) != 1 || len(withStatus.alerts) != 0 {
		t.Fatalf("status sink: statuses=%v alerts=%v", withStatus.statuses, withStatus.alerts)
	}
	if len(plain.alerts) != 1 || plain.alerts[0] != "running" {
		t.Fatalf("fallback sink alerts = %v", plain.alerts)
	}
	if st := d.Stats(); st.Alerts != 0 || st.Statuses != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPlainTextOmitsEmptyFields(t *testing.T) {
	t.Parallel()
	area := 71.3
	got := PlainText(listing.Record{
		ID:          "7",
		Description: "71.3 м², этаж 1 из 3",
		Area:        &area,
		Address:     "Main st 1",
		Prices:      listing.Prices{Secondary: "555 $"},
	})
	for _, want := range []string{"71.3 м²", "Area: 71.3 m²", "Address: Main st 1", "Price (USD): 555 $", "ID: 7"} {
		if !strings.Contains(got, want) {
			t.Fatalf("PlainText missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Per m²") || strings.Contains(got, "Photo") {
		t.Fatalf("PlainText rendered empty field:\n%s", got)
	}
	if Title(listing.Record{Address: "Main st 1", Prices: listing.Prices{Primary: "100 р."}}) != "New listing: Main st 1, 100 р." {
		t.Fatal("Title mismatch")
	}
}
