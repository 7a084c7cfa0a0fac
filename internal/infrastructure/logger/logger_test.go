package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/iho/goescrow/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerFormatsOutput(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		level      string
		assertions func(t *testing.T, output string)
	}{
		{
			name:   "console format is not json",
			format: "console",
			level:  "info",
			assertions: func(t *testing.T, output string) {
				if strings.HasPrefix(strings.TrimSpace(output), "{") || !strings.Contains(output, "hello") {
					t.Fatalf("expected console output with the message, got %q", output)
				}
			},
		},
		{
			name:   "json format starts with brace",
			format: "json",
			level:  "debug",
			assertions: func(t *testing.T, output string) {
				if !strings.HasPrefix(strings.TrimSpace(output), "{") {
					t.Fatalf("expected json output to start with '{', got %q", output)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Format: tt.format, Level: tt.level, Output: &buf})
			log.Info().Msg("hello")

			if buf.Len() == 0 {
				t.Fatalf("expected log output, got empty string")
			}

			tt.assertions(t, buf.String())
		})
	}
}

func TestLevelFiltersMessages(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Level: "warn", Output: &buf})

	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}

	log.Warn().Msg("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn message, got %q", buf.String())
	}
}

func TestWithContextAddsRequestAndActor(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Level: "info", Output: &buf})

	ctx := domain.ContextWithRequestID(context.Background(), "req-1")
	ctx = domain.ContextWithActor(ctx, &domain.Actor{ID: "operator-1", Role: domain.RoleOperator})

	l := WithContext(ctx, base)
	l.Info().Msg("approved")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one json entry, got %q: %v", buf.String(), err)
	}

	if entry["request_id"] != "req-1" || entry["actor_id"] != "operator-1" || entry["role"] != "operator" {
		t.Fatalf("expected context fields, got %v", entry)
	}
}

func TestWithContextWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Level: "info", Output: &buf})

	l := WithContext(context.Background(), base)
	l.Info().Msg("plain")

	if strings.Contains(buf.String(), "request_id") || strings.Contains(buf.String(), "actor_id") {
		t.Fatalf("expected no context fields, got %q", buf.String())
	}
}
