package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != WarnLevel {
		t.Errorf("expected Level to be WarnLevel, got %v", cfg.Level)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected Output to be os.Stderr")
	}
	if cfg.Pretty {
		t.Errorf("expected Pretty to be false")
	}
	if cfg.TimeFormat != time.RFC3339 {
		t.Errorf("expected TimeFormat to be RFC3339, got %s", cfg.TimeFormat)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"  debug  ", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"off", Disabled},
		{"unknown", WarnLevel},
		{"", WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInit_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Init(Config{Level: InfoLevel, Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Init(DefaultConfig())

	Debug().Msg("hidden")
	Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered, got %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected info message in output, got %s", out)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Init(Config{Level: DebugLevel, Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Init(DefaultConfig())

	log := Component("cache")
	log.Debug().Msg("swept")

	if !strings.Contains(buf.String(), `"component":"cache"`) {
		t.Errorf("expected component field, got %s", buf.String())
	}
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agentctx.log")
	closer, err := Init(Config{Level: InfoLevel, File: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info().Msg("to file")
	closer.Close()
	Init(DefaultConfig())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("expected message in log file, got %s", data)
	}
}
