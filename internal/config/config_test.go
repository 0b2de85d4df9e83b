package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Tagger.Mode != "prose" {
		t.Fatalf("expected prose tagger by default, got %q", cfg.Tagger.Mode)
	}
	if cfg.Analysis.DelayMS != 0 {
		t.Fatalf("expected zero analysis delay, got %d", cfg.Analysis.DelayMS)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa.yaml")
	data := `runtime_name: keywords-test
tagger:
  mode: lexicon
  lexicon_path: ./lexicon.yaml
analysis:
  delay_ms: 1500
  stop_on_final: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "keywords-test" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.Tagger.Mode != "lexicon" || cfg.Tagger.LexiconPath != "./lexicon.yaml" {
		t.Fatalf("unexpected tagger config %+v", cfg.Tagger)
	}
	if cfg.Analysis.DelayMS != 1500 || cfg.Analysis.StopOnFinal {
		t.Fatalf("unexpected analysis config %+v", cfg.Analysis)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected default port to survive partial file, got %d", cfg.HTTP.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_TAGGER_MODE", "plain")
	t.Setenv("LOQA_ANALYSIS_DELAY_MS", "250")
	t.Setenv("LOQA_STT_MOCK_TEXT", "hello from the mock recognizer")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store override, got %+v", cfg.EventStore)
	}
	if cfg.Tagger.Mode != "plain" {
		t.Fatalf("expected tagger mode override, got %q", cfg.Tagger.Mode)
	}
	if cfg.Analysis.DelayMS != 250 {
		t.Fatalf("expected delay override, got %d", cfg.Analysis.DelayMS)
	}
	if cfg.STT.MockText != "hello from the mock recognizer" {
		t.Fatalf("expected mock text override, got %q", cfg.STT.MockText)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"lexicon without path", func(c *Config) { c.Tagger.Mode = "lexicon" }, "tagger.lexicon_path"},
		{"unknown tagger", func(c *Config) { c.Tagger.Mode = "spacy" }, "tagger.mode"},
		{"negative delay", func(c *Config) { c.Analysis.DelayMS = -1 }, "analysis.delay_ms"},
		{"exec stt without command", func(c *Config) { c.STT.Enabled = true; c.STT.Mode = "exec" }, "stt.command"},
		{"bad log level", func(c *Config) { c.Telemetry.LogLevel = "loud" }, "telemetry.log_level"},
		{"bad retention", func(c *Config) { c.EventStore.RetentionMode = "forever" }, "retention_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
