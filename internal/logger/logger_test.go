package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Fatalf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Fatalf("expected key=value in JSON output, got: %s", out)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output for info at warn level, got: %s", buf.String())
	}
	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message, got: %s", buf.String())
	}
}

func TestForFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"m"`},
		{"text", "msg=m"},
		{"logfmt", "msg=m"},
		{"pretty", "INF"},
		{"", "INF"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		ForFormat(&buf, tc.format, slog.LevelInfo).Info("m")
		if !strings.Contains(buf.String(), tc.want) {
			t.Errorf("ForFormat(%q): expected %q in %q", tc.format, tc.want, buf.String())
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
	fallback := Discard()
	if FromContextOr(context.Background(), fallback) != fallback {
		t.Fatal("FromContextOr without logger should return the fallback")
	}
	if FromContextOr(ctx, fallback) != log {
		t.Fatal("FromContextOr should prefer the context logger")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"loud", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestPrettyGroupsAndAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "precis")}).WithGroup("req").WithGroup("knobs"))
	l.Info("grouped", "beams", 2)

	out := buf.String()
	if !strings.Contains(out, "service=precis") {
		t.Fatalf("expected handler attr, got: %s", out)
	}
	if !strings.Contains(out, "req.knobs.beams=2") {
		t.Fatalf("expected nested group prefix, got: %s", out)
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Info("q", "text", "hello world", "id", "abc")

	out := buf.String()
	if !strings.Contains(out, `text="hello world"`) {
		t.Fatalf("expected quoted value, got: %s", out)
	}
	if !strings.Contains(out, "id=abc") {
		t.Fatalf("expected bare value, got: %s", out)
	}
}

func TestPrettyEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the same handler")
	}
}
