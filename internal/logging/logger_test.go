// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"DEBUG", zerolog.DebugLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

// Tests below mutate the global logger and must not run in parallel.

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("library_id", "lib-1").Msg("library synced")

	out := buf.String()
	if !strings.Contains(out, `"message":"library synced"`) {
		t.Errorf("missing message in output: %s", out)
	}
	if !strings.Contains(out, `"library_id":"lib-1"`) {
		t.Errorf("missing field in output: %s", out)
	}
}

func TestCtxAddsCorrelationAndServer(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())
	SetLevelString("debug")

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithServerID(ctx, "jf-main")
	Ctx(ctx).Info().Msg("pass started")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"abc12345"`) {
		t.Errorf("missing correlation_id: %s", out)
	}
	if !strings.Contains(out, `"server_id":"jf-main"`) {
		t.Errorf("missing server_id: %s", out)
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("expected 8 characters, got %d", len(a))
	}
	if a == b {
		t.Error("expected unique correlation IDs")
	}
}

func TestSlogHandlerBridgesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))
	slogger.WithGroup("supervisor").Warn("service restarted", "service", "scheduler", "attempt", 2)

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level: %s", out)
	}
	if !strings.Contains(out, `"supervisor.service":"scheduler"`) {
		t.Errorf("expected grouped key: %s", out)
	}
	if !strings.Contains(out, `"supervisor.attempt":2`) {
		t.Errorf("expected grouped int: %s", out)
	}
}
