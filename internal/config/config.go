package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Session       SessionConfig       `yaml:"session"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Agent         AgentConfig         `yaml:"agent"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	UDPPort       int    `yaml:"udp_port"`
	BindAddress   string `yaml:"bind_address"`
	BufferSize    int    `yaml:"buffer_size"`
	MaxPacketSize int    `yaml:"max_packet_size"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// SessionConfig contains session lifecycle parameters
type SessionConfig struct {
	InactivityTimeoutMs  int `yaml:"inactivity_timeout_ms"`
	SweepIntervalMs      int `yaml:"sweep_interval_ms"`
	MaxBufferBytes       int `yaml:"max_buffer_bytes"`
	MaxUtteranceDuration int `yaml:"max_utterance_duration"` // seconds
}

// DispatcherConfig contains worker pool configuration
type DispatcherConfig struct {
	Workers     int    `yaml:"workers"`
	QueueSize   int    `yaml:"queue_size"`
	QueuePolicy string `yaml:"queue_policy"` // "drop_oldest" or "reject"
	ErrorReply  string `yaml:"error_reply"`  // "notify" or "silent"
}

// AudioConfig contains audio assembly parameters for raw PCM payloads
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// TranscriptionConfig contains speech-to-text API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	ModelID       string `yaml:"model_id"`
	LanguageCode  string `yaml:"language_code"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// AgentConfig contains agent API configuration
type AgentConfig struct {
	Endpoint      string   `yaml:"endpoint"`
	APIKey        string   `yaml:"api_key"`
	Timeout       int      `yaml:"timeout"` // seconds
	MaxRetries    int      `yaml:"max_retries"`
	MaxConcurrent int      `yaml:"max_concurrent"`
	Toolset       []string `yaml:"toolset"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Dispatcher.Validate(); err != nil {
		return fmt.Errorf("dispatcher config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.MaxPacketSize < 1 || s.MaxPacketSize > 65507 {
		return fmt.Errorf("max_packet_size must be between 1 and 65507 bytes, got %d", s.MaxPacketSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.InactivityTimeoutMs < 100 {
		return fmt.Errorf("inactivity_timeout_ms must be at least 100, got %d", s.InactivityTimeoutMs)
	}

	if s.SweepIntervalMs < 10 {
		return fmt.Errorf("sweep_interval_ms must be at least 10, got %d", s.SweepIntervalMs)
	}

	if s.SweepIntervalMs > s.InactivityTimeoutMs {
		return fmt.Errorf("sweep_interval_ms (%d) must not exceed inactivity_timeout_ms (%d)",
			s.SweepIntervalMs, s.InactivityTimeoutMs)
	}

	if s.MaxBufferBytes < 1024 {
		return fmt.Errorf("max_buffer_bytes must be at least 1024, got %d", s.MaxBufferBytes)
	}

	if s.MaxUtteranceDuration < 1 {
		return fmt.Errorf("max_utterance_duration must be at least 1 second, got %d", s.MaxUtteranceDuration)
	}

	return nil
}

// Validate validates dispatcher configuration
func (d *DispatcherConfig) Validate() error {
	if d.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", d.Workers)
	}

	if d.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", d.QueueSize)
	}

	validPolicies := map[string]bool{"drop_oldest": true, "reject": true}
	if !validPolicies[d.QueuePolicy] {
		return fmt.Errorf("queue_policy must be 'drop_oldest' or 'reject', got '%s'", d.QueuePolicy)
	}

	validReplies := map[string]bool{"notify": true, "silent": true}
	if !validReplies[d.ErrorReply] {
		return fmt.Errorf("error_reply must be 'notify' or 'silent', got '%s'", d.ErrorReply)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.ModelID == "" {
		return fmt.Errorf("model_id cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates agent configuration
func (a *AgentConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}

	if a.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", a.MaxConcurrent)
	}

	if len(a.Toolset) == 0 {
		return fmt.Errorf("toolset cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr, or a file path.

	return nil
}

// GetInactivityTimeout returns the inactivity timeout as a time.Duration
func (s *SessionConfig) GetInactivityTimeout() time.Duration {
	return time.Duration(s.InactivityTimeoutMs) * time.Millisecond
}

// GetSweepInterval returns the sweep interval as a time.Duration
func (s *SessionConfig) GetSweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMs) * time.Millisecond
}

// GetMaxUtteranceDuration returns the utterance duration cap as a time.Duration
func (s *SessionConfig) GetMaxUtteranceDuration() time.Duration {
	return time.Duration(s.MaxUtteranceDuration) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the agent timeout as a time.Duration
func (a *AgentConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}
