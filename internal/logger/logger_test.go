package logger

import (
	"context"
	"testing"

	"github.com/canopyhq/canopy/internal/config"
)

func TestNewSyncAndAsync(t *testing.T) {
	for _, async := range []bool{false, true} {
		cfg := config.Logging{Level: "debug", Service: "canopy-test", Async: async}
		l, closer := New(cfg)
		if l == nil {
			t.Fatalf("nil logger (async=%v)", async)
		}
		l.Info("startup", "async", async)
		closer.Close()
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"nope":    "INFO",
		"":        "INFO",
	}
	for input, want := range cases {
		if got := parseLevel(input).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Fatalf("bare context carries id %q", got)
	}
	ctx = WithRequestID(ctx, "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Fatalf("round trip gave %q", got)
	}
}
