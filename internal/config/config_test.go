package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen:
  address: 127.0.0.1
  port: 9090
llm:
  provider: anthropic
  api_key: test-key
  base_url: https://api.anthropic.com/v1
  model: claude-x
  max_tokens: 1000
  timeout_sec: 30
storage:
  data_dir: /tmp/infchat
agent:
  max_iterations: 10
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Listen.Address != "127.0.0.1" || cfg.Listen.Port != 9090 {
		t.Errorf("listen = %+v", cfg.Listen)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-x" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.LLM.Timeout())
	}
	if cfg.Storage.DataDir != "/tmp/infchat" {
		t.Errorf("data_dir = %q", cfg.Storage.DataDir)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("max_iterations = %d", cfg.Agent.MaxIterations)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
}

func TestLoadDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key: k
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Listen.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Listen.Port)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("provider = %q, want default openai", cfg.LLM.Provider)
	}
	if cfg.LLM.Timeout() != 120*time.Second {
		t.Errorf("timeout = %v, want default 120s", cfg.LLM.Timeout())
	}
	if cfg.Agent.MaxIterations != 20 {
		t.Errorf("max_iterations = %d, want default 20", cfg.Agent.MaxIterations)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("data_dir = %q, want default data", cfg.Storage.DataDir)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_INFCHAT_KEY", "expanded-secret")

	path := writeConfig(t, `
llm:
  api_key: ${TEST_INFCHAT_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "expanded-secret" {
		t.Errorf("api_key = %q, want expanded value", cfg.LLM.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "listen: [not: valid")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "ghost.yaml")); err == nil {
		t.Error("explicit missing path must error, not fall back to search")
	}
}

func TestFindConfigExplicit(t *testing.T) {
	path := writeConfig(t, "log_level: info")
	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"  Error  ", slog.LevelError},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)}
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("trace renders as %q, want TRACE", got.Value.String())
	}

	other := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)}
	got = ReplaceLogLevelNames(nil, other)
	if got.Value.Any().(slog.Level) != slog.LevelInfo {
		t.Errorf("info level was altered: %v", got.Value)
	}
}
