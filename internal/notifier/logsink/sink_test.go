package logsink

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"
)

func TestSinkWritesRecordAndAlert(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := New(logx.NewWriter(&buf, "debug"))

	if err := s.Send(context.Background(), listing.Record{ID: "9", Address: "Main st 1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.SendError(context.Background(), "poller stuck"); err != nil {
		t.Fatalf("SendError: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"id":"9"`, "Main st 1", "poller stuck", `"level":"error"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}

func TestSinkStatusLogsAtInfo(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := New(logx.NewWriter(&buf, "debug")).SendStatus(context.Background(), "still running"); err != nil {
		t.Fatalf("SendStatus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "still running") || !strings.Contains(out, `"level":"info"`) {
		t.Fatalf("log = %s", out)
	}
}

func TestSinkHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(logx.Nop()).Send(ctx, listing.Record{ID: "1"}); err == nil {
		t.Fatal("expected context error")
	}
}
