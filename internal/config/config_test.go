package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			UDPPort:       9876,
			BindAddress:   "0.0.0.0",
			BufferSize:    65536,
			MaxPacketSize: 65507,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Session: SessionConfig{
			InactivityTimeoutMs:  2000,
			SweepIntervalMs:      100,
			MaxBufferBytes:       1 << 20,
			MaxUtteranceDuration: 60,
		},
		Dispatcher: DispatcherConfig{
			Workers:     10,
			QueueSize:   64,
			QueuePolicy: "drop_oldest",
			ErrorReply:  "notify",
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   1,
			BitDepth:   16,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "https://api.example.com/v1/speech-to-text",
			APIKey:        "test-key",
			ModelID:       "scribe_v1",
			LanguageCode:  "en",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 10,
		},
		Agent: AgentConfig{
			Endpoint:      "https://agent.example.com/invoke",
			APIKey:        "agent-key",
			Timeout:       60,
			MaxRetries:    2,
			MaxConcurrent: 10,
			Toolset:       []string{"create_calendar_event", "internet_search"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.UDPPort = 70000 },
			expectError: true,
			errorMsg:    "udp_port",
		},
		{
			name:        "empty bind address",
			mutate:      func(c *Config) { c.Server.BindAddress = "" },
			expectError: true,
			errorMsg:    "bind_address",
		},
		{
			name:        "oversized max packet",
			mutate:      func(c *Config) { c.Server.MaxPacketSize = 70000 },
			expectError: true,
			errorMsg:    "max_packet_size",
		},
		{
			name:        "inactivity timeout too small",
			mutate:      func(c *Config) { c.Session.InactivityTimeoutMs = 50 },
			expectError: true,
			errorMsg:    "inactivity_timeout_ms",
		},
		{
			name: "sweep interval exceeds timeout",
			mutate: func(c *Config) {
				c.Session.SweepIntervalMs = 5000
			},
			expectError: true,
			errorMsg:    "sweep_interval_ms",
		},
		{
			name:        "unknown queue policy",
			mutate:      func(c *Config) { c.Dispatcher.QueuePolicy = "block" },
			expectError: true,
			errorMsg:    "queue_policy",
		},
		{
			name:        "unknown error reply policy",
			mutate:      func(c *Config) { c.Dispatcher.ErrorReply = "always" },
			expectError: true,
			errorMsg:    "error_reply",
		},
		{
			name:        "stereo audio rejected",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels",
		},
		{
			name:        "missing transcription api key",
			mutate:      func(c *Config) { c.Transcription.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key",
		},
		{
			name:        "missing agent endpoint",
			mutate:      func(c *Config) { c.Agent.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint",
		},
		{
			name:        "empty toolset",
			mutate:      func(c *Config) { c.Agent.Toolset = nil },
			expectError: true,
			errorMsg:    "toolset",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level",
		},
		{
			name:        "http enabled without address",
			mutate:      func(c *Config) { c.HTTP.Address = "" },
			expectError: true,
			errorMsg:    "address",
		},
		{
			name: "http disabled skips http validation",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Address = ""
				c.HTTP.Port = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected validation error containing %q, got nil", tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected valid config, got error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	yamlContent := `
server:
  udp_port: 9876
  bind_address: "0.0.0.0"
  buffer_size: 65536
  max_packet_size: 65507
http:
  enabled: false
session:
  inactivity_timeout_ms: 2000
  sweep_interval_ms: 100
  max_buffer_bytes: 1048576
  max_utterance_duration: 60
dispatcher:
  workers: 10
  queue_size: 64
  queue_policy: drop_oldest
  error_reply: notify
audio:
  sample_rate: 44100
  channels: 1
  bit_depth: 16
transcription:
  endpoint: "https://api.elevenlabs.io/v1/speech-to-text"
  api_key: "secret"
  model_id: "scribe_v1"
  language_code: "en"
  timeout: 30
  max_retries: 3
  max_concurrent: 10
agent:
  endpoint: "http://localhost:8090/invoke"
  api_key: "secret"
  timeout: 60
  max_retries: 2
  max_concurrent: 10
  toolset:
    - create_calendar_event
    - search_calendar_event
    - internet_search
logging:
  level: info
  format: text
  output: stdout
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.UDPPort != 9876 {
		t.Errorf("expected udp_port 9876, got %d", cfg.Server.UDPPort)
	}

	if cfg.Session.GetInactivityTimeout() != 2*time.Second {
		t.Errorf("expected 2s inactivity timeout, got %v", cfg.Session.GetInactivityTimeout())
	}

	if cfg.Session.GetSweepInterval() != 100*time.Millisecond {
		t.Errorf("expected 100ms sweep interval, got %v", cfg.Session.GetSweepInterval())
	}

	if len(cfg.Agent.Toolset) != 3 {
		t.Errorf("expected 3 tools, got %d", len(cfg.Agent.Toolset))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := validConfig()

	if cfg.Session.GetMaxUtteranceDuration() != 60*time.Second {
		t.Errorf("expected 60s max utterance duration, got %v", cfg.Session.GetMaxUtteranceDuration())
	}

	if cfg.Transcription.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("expected 30s transcription timeout, got %v", cfg.Transcription.GetTimeoutDuration())
	}

	if cfg.Agent.GetTimeoutDuration() != 60*time.Second {
		t.Errorf("expected 60s agent timeout, got %v", cfg.Agent.GetTimeoutDuration())
	}
}
