package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName  string             `yaml:"runtime_name"`
	Environment  string             `yaml:"environment"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bus          BusConfig          `yaml:"bus"`
	Node         NodeConfig         `yaml:"node"`
	EventStore   EventStoreConfig   `yaml:"event_store"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Transcribe   TranscribeConfig   `yaml:"transcribe"`
	Chat         ChatConfig         `yaml:"chat"`
	Conversation ConversationConfig `yaml:"conversation"`
	Timing       TimingConfig       `yaml:"timing"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string           `yaml:"id"`
	Role              string           `yaml:"role"`
	HeartbeatInterval int              `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int              `yaml:"heartbeat_timeout_ms"`
	Capabilities      []NodeCapability `yaml:"capabilities"`
}

type NodeCapability struct {
	Name       string            `yaml:"name"`
	Tier       string            `yaml:"tier"`
	Attributes map[string]string `yaml:"attributes"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SynthesisConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Mode           string  `yaml:"mode"` // mock, exec
	Command        string  `yaml:"command"`
	Voice          string  `yaml:"voice"`
	Format         string  `yaml:"format"`
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	BaseRate       float64 `yaml:"base_rate"`
	DefaultPauseMS int64   `yaml:"default_pause_ms"`
	FPS            int     `yaml:"fps"`
}

type TranscribeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	MaxChunkMS int64  `yaml:"max_chunk_ms"`
}

type ChatConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Mode         string  `yaml:"mode"` // mock, ollama
	Endpoint     string  `yaml:"endpoint"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

type ConversationConfig struct {
	Enabled            bool    `yaml:"enabled"`
	SampleRate         int     `yaml:"sample_rate"`
	Channels           int     `yaml:"channels"`
	EnergyThreshold    float64 `yaml:"energy_threshold"`
	SilenceThresholdMS int64   `yaml:"silence_threshold_ms"`
	Voice              string  `yaml:"voice"`
	Language           string  `yaml:"language"`
}

type TimingConfig struct {
	FPS           int     `yaml:"fps"`
	BreathingRoom float64 `yaml:"breathing_room"`
}

func Default() Config {
	return Config{
		RuntimeName: "canto-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "canto-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
			Capabilities: []NodeCapability{
				{Name: "runtime.core", Tier: "balanced"},
			},
		},
		EventStore: EventStoreConfig{
			Path:          "./data/canto-sessions.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Synthesis: SynthesisConfig{
			Enabled:        false,
			Mode:           "mock",
			Format:         "wav",
			SampleRate:     22050,
			Channels:       1,
			BaseRate:       1.0,
			DefaultPauseMS: 300,
			FPS:            30,
		},
		Transcribe: TranscribeConfig{
			Enabled:    false,
			Mode:       "mock",
			MaxChunkMS: 5 * 60 * 1000,
		},
		Chat: ChatConfig{
			Enabled:     false,
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   256,
			Temperature: 0.7,
		},
		Conversation: ConversationConfig{
			Enabled:            false,
			SampleRate:         16000,
			Channels:           1,
			EnergyThreshold:    0.01,
			SilenceThresholdMS: 800,
			Voice:              "en-US",
			Language:           "en",
		},
		Timing: TimingConfig{
			FPS:           30,
			BreathingRoom: 1.15,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CANTO_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CANTO_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CANTO_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CANTO_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CANTO_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CANTO_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CANTO_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CANTO_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "CANTO_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CANTO_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CANTO_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CANTO_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CANTO_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CANTO_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CANTO_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CANTO_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "CANTO_NODE_ID")
	overrideString(&cfg.Node.Role, "CANTO_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "CANTO_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "CANTO_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "CANTO_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "CANTO_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "CANTO_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "CANTO_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "CANTO_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Synthesis.Enabled, "CANTO_SYNTHESIS_ENABLED")
	overrideString(&cfg.Synthesis.Mode, "CANTO_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Command, "CANTO_SYNTHESIS_COMMAND")
	overrideString(&cfg.Synthesis.Voice, "CANTO_SYNTHESIS_VOICE")
	overrideString(&cfg.Synthesis.Format, "CANTO_SYNTHESIS_FORMAT")
	overrideInt(&cfg.Synthesis.SampleRate, "CANTO_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.Channels, "CANTO_SYNTHESIS_CHANNELS")
	overrideFloat(&cfg.Synthesis.BaseRate, "CANTO_SYNTHESIS_BASE_RATE")
	overrideInt64(&cfg.Synthesis.DefaultPauseMS, "CANTO_SYNTHESIS_DEFAULT_PAUSE_MS")
	overrideInt(&cfg.Synthesis.FPS, "CANTO_SYNTHESIS_FPS")
	overrideBool(&cfg.Transcribe.Enabled, "CANTO_TRANSCRIBE_ENABLED")
	overrideString(&cfg.Transcribe.Mode, "CANTO_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.Command, "CANTO_TRANSCRIBE_COMMAND")
	overrideString(&cfg.Transcribe.ModelPath, "CANTO_TRANSCRIBE_MODEL_PATH")
	overrideString(&cfg.Transcribe.Language, "CANTO_TRANSCRIBE_LANGUAGE")
	overrideInt64(&cfg.Transcribe.MaxChunkMS, "CANTO_TRANSCRIBE_MAX_CHUNK_MS")
	overrideBool(&cfg.Chat.Enabled, "CANTO_CHAT_ENABLED")
	overrideString(&cfg.Chat.Mode, "CANTO_CHAT_MODE")
	overrideString(&cfg.Chat.Endpoint, "CANTO_CHAT_ENDPOINT")
	overrideString(&cfg.Chat.Model, "CANTO_CHAT_MODEL")
	overrideInt(&cfg.Chat.MaxTokens, "CANTO_CHAT_MAX_TOKENS")
	overrideFloat(&cfg.Chat.Temperature, "CANTO_CHAT_TEMPERATURE")
	overrideString(&cfg.Chat.SystemPrompt, "CANTO_CHAT_SYSTEM_PROMPT")
	overrideBool(&cfg.Conversation.Enabled, "CANTO_CONVERSATION_ENABLED")
	overrideInt(&cfg.Conversation.SampleRate, "CANTO_CONVERSATION_SAMPLE_RATE")
	overrideInt(&cfg.Conversation.Channels, "CANTO_CONVERSATION_CHANNELS")
	overrideFloat(&cfg.Conversation.EnergyThreshold, "CANTO_CONVERSATION_ENERGY_THRESHOLD")
	overrideInt64(&cfg.Conversation.SilenceThresholdMS, "CANTO_CONVERSATION_SILENCE_THRESHOLD_MS")
	overrideString(&cfg.Conversation.Voice, "CANTO_CONVERSATION_VOICE")
	overrideString(&cfg.Conversation.Language, "CANTO_CONVERSATION_LANGUAGE")
	overrideInt(&cfg.Timing.FPS, "CANTO_TIMING_FPS")
	overrideFloat(&cfg.Timing.BreathingRoom, "CANTO_TIMING_BREATHING_ROOM")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Synthesis.Enabled {
		switch cfg.Synthesis.Mode {
		case "mock", "exec":
		default:
			return errors.New("synthesis.mode must be one of mock|exec")
		}
		if cfg.Synthesis.Mode == "exec" && cfg.Synthesis.Command == "" {
			return errors.New("synthesis.command must be set when mode=exec")
		}
		if cfg.Synthesis.SampleRate <= 0 {
			return errors.New("synthesis.sample_rate must be positive")
		}
		if cfg.Synthesis.Channels <= 0 {
			return errors.New("synthesis.channels must be positive")
		}
		if cfg.Synthesis.BaseRate < 0.7 || cfg.Synthesis.BaseRate > 1.3 {
			return errors.New("synthesis.base_rate must be within 0.7 and 1.3")
		}
	}
	if cfg.Transcribe.Enabled {
		switch cfg.Transcribe.Mode {
		case "mock", "exec":
		default:
			return errors.New("transcribe.mode must be one of mock|exec")
		}
		if cfg.Transcribe.Mode == "exec" && cfg.Transcribe.Command == "" {
			return errors.New("transcribe.command must be set when mode=exec")
		}
		if cfg.Transcribe.MaxChunkMS < 0 {
			return errors.New("transcribe.max_chunk_ms must be >= 0")
		}
	}
	if cfg.Chat.Enabled {
		switch cfg.Chat.Mode {
		case "mock", "ollama":
		default:
			return errors.New("chat.mode must be one of mock|ollama")
		}
		if cfg.Chat.Mode == "ollama" && cfg.Chat.Endpoint == "" {
			return errors.New("chat.endpoint must be set when mode=ollama")
		}
		if cfg.Chat.MaxTokens < 0 {
			return errors.New("chat.max_tokens must be >= 0")
		}
	}
	if cfg.Conversation.Enabled {
		if cfg.Conversation.SampleRate <= 0 {
			return errors.New("conversation.sample_rate must be positive")
		}
		if cfg.Conversation.Channels <= 0 {
			return errors.New("conversation.channels must be positive")
		}
		if cfg.Conversation.EnergyThreshold <= 0 {
			return errors.New("conversation.energy_threshold must be positive")
		}
		if cfg.Conversation.SilenceThresholdMS <= 0 {
			return errors.New("conversation.silence_threshold_ms must be positive")
		}
	}
	if cfg.Timing.FPS <= 0 {
		return errors.New("timing.fps must be positive")
	}
	if cfg.Timing.BreathingRoom < 1.0 {
		return errors.New("timing.breathing_room must be >= 1.0")
	}
	return nil
}
