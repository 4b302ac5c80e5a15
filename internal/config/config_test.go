package config

import (
	"os"
	"path/filepath"
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
	if cfg.Timing.FPS != 30 || cfg.Timing.BreathingRoom != 1.15 {
		t.Fatalf("unexpected timing defaults: %+v", cfg.Timing)
	}
	if cfg.Conversation.EnergyThreshold != 0.01 || cfg.Conversation.SilenceThresholdMS != 800 {
		t.Fatalf("unexpected conversation defaults: %+v", cfg.Conversation)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CANTO_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("CANTO_BUS_USERNAME", "alice")
	t.Setenv("CANTO_BUS_PASSWORD", "secret")
	t.Setenv("CANTO_BUS_TLS_INSECURE", "true")
	t.Setenv("CANTO_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("CANTO_NODE_ID", "test-node")
	t.Setenv("CANTO_NODE_ROLE", "runtime")
	t.Setenv("CANTO_NODE_HEARTBEAT_INTERVAL_MS", "1500")
	t.Setenv("CANTO_NODE_HEARTBEAT_TIMEOUT_MS", "5000")
	t.Setenv("CANTO_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("CANTO_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("CANTO_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("CANTO_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("CANTO_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("CANTO_SYNTHESIS_ENABLED", "true")
	t.Setenv("CANTO_SYNTHESIS_MODE", "exec")
	t.Setenv("CANTO_SYNTHESIS_COMMAND", "piper --output-raw")
	t.Setenv("CANTO_SYNTHESIS_BASE_RATE", "0.95")
	t.Setenv("CANTO_CHAT_ENABLED", "true")
	t.Setenv("CANTO_CHAT_MODE", "ollama")
	t.Setenv("CANTO_CHAT_MODEL", "llama3.2:1b")
	t.Setenv("CANTO_CONVERSATION_SILENCE_THRESHOLD_MS", "600")

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
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Node.ID != "test-node" {
		t.Fatalf("expected node id override")
	}
	if cfg.Node.HeartbeatInterval != 1500 {
		t.Fatalf("expected heartbeat interval override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store max sessions override")
	}
	if cfg.Synthesis.Mode != "exec" || cfg.Synthesis.Command != "piper --output-raw" {
		t.Fatalf("expected synthesis overrides: %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.BaseRate != 0.95 {
		t.Fatalf("expected base rate override, got %v", cfg.Synthesis.BaseRate)
	}
	if cfg.Chat.Mode != "ollama" || cfg.Chat.Model != "llama3.2:1b" {
		t.Fatalf("expected chat overrides: %+v", cfg.Chat)
	}
	if cfg.Conversation.SilenceThresholdMS != 600 {
		t.Fatalf("expected silence threshold override, got %d", cfg.Conversation.SilenceThresholdMS)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canto.yaml")
	doc := []byte(`
runtime_name: canto-test
synthesis:
  enabled: true
  mode: mock
  sample_rate: 44100
transcribe:
  enabled: true
  mode: mock
timing:
  fps: 25
`)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "canto-test" {
		t.Fatalf("expected runtime name from file, got %s", cfg.RuntimeName)
	}
	if cfg.Synthesis.SampleRate != 44100 {
		t.Fatalf("expected sample rate from file, got %d", cfg.Synthesis.SampleRate)
	}
	if cfg.Timing.FPS != 25 {
		t.Fatalf("expected fps from file, got %d", cfg.Timing.FPS)
	}
	// untouched sections keep defaults
	if cfg.Bus.Port != 4222 {
		t.Fatalf("expected default bus port, got %d", cfg.Bus.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad retention mode", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
		{"exec synth without command", func(c *Config) {
			c.Synthesis.Enabled = true
			c.Synthesis.Mode = "exec"
			c.Synthesis.Command = ""
		}},
		{"base rate out of range", func(c *Config) {
			c.Synthesis.Enabled = true
			c.Synthesis.BaseRate = 1.5
		}},
		{"zero fps", func(c *Config) { c.Timing.FPS = 0 }},
		{"breathing room below one", func(c *Config) { c.Timing.BreathingRoom = 0.9 }},
		{"conversation zero silence", func(c *Config) {
			c.Conversation.Enabled = true
			c.Conversation.SilenceThresholdMS = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
