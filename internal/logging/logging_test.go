package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const fakeToken = "MTIzNDU2Nzg5MDEyMzQ1Njc4OQ.GaBcDe.abcdefghijklmnopqrstuvwxyz0123"

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_RedactsToken(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _, err := New(&buf, Options{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("discord: identify with "+fakeToken, "auth", "Bot "+fakeToken)

	out := buf.String()
	if strings.Contains(out, fakeToken) {
		t.Errorf("token leaked: %s", out)
	}
	if !strings.Contains(out, Placeholder) {
		t.Errorf("expected placeholder: %s", out)
	}
}

func TestNew_JSONFormatAndLateSecrets(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, redactor, err := New(&buf, Options{Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	redactor.AddLiteral("hunter2-password")
	logger.With("component", "recall").Error("request failed", "error", errors.New("auth hunter2-password rejected"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if strings.Contains(buf.String(), "hunter2-password") {
		t.Errorf("literal leaked: %s", buf.String())
	}
	if rec["component"] != "recall" {
		t.Errorf("component attr missing: %v", rec)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _, _ := New(&buf, Options{Level: "warn"})
	logger.Info("quiet")
	logger.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	t.Parallel()

	if _, _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestRedactingHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRedactor("group-secret-value")
	logger := slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil), r))
	logger.WithGroup("ollama").Info("call", slog.Group("auth", "key", "group-secret-value"))

	if strings.Contains(buf.String(), "group-secret-value") {
		t.Errorf("secret leaked inside group: %s", buf.String())
	}
}

func TestRedactor_IgnoresShortLiterals(t *testing.T) {
	t.Parallel()

	r := NewRedactor("abc")
	if got := r.Redact("abc def"); got != "abc def" {
		t.Errorf("short literal should be ignored, got %q", got)
	}
}
