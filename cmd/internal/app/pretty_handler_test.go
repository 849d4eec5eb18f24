package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.Debug("hidden")
	log.With("request_id", "r-1").Info("http.request",
		"method", "get",
		"path", "/api/v1/suppliers",
		"status", 201,
		"duration_ms", int64(12),
		"err", errors.New("boom bang"),
	)

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Fatalf("debug record leaked: %q", got)
	}
	for _, want := range []string{
		"[INFO] http.request",
		"request_id=r-1",
		"method=GET",
		"path=/api/v1/suppliers",
		"status=201",
		"duration=12ms",
		`err="boom bang"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("unexpected ANSI codes in %q", got)
	}
	if strings.Count(got, "\n") != 1 {
		t.Fatalf("expected a single line, got %q", got)
	}
}

func TestPrettyHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).WithGroup("db")
	log.Warn("pool", slog.Group("conns", "max", 10), "schema", "tourdesk")

	got := buf.String()
	for _, want := range []string{"[WARN] pool", "db.conns.max=10", "db.schema=tourdesk"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestPrettyHandler_Colored(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))
	log.Error("server.fail", "status", 503)

	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI codes in %q", buf.String())
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":        `""`,
		"plain":   "plain",
		"two words": `"two words"`,
		"k=v":     `"k=v"`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", in, got, want)
		}
	}
}
