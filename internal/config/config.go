package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	API        APIConfig        `yaml:"api"`
	Audio      AudioConfig      `yaml:"audio"`
	Capture    CaptureConfig    `yaml:"capture"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig contains transcription service connection configuration
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// AudioConfig contains pipeline audio parameters
type AudioConfig struct {
	TargetRate         int     `yaml:"target_rate"`          // Hz, fixed delivery rate
	ChunkDuration      float64 `yaml:"chunk_duration"`       // seconds per delivered chunk
	MaxBufferedSeconds float64 `yaml:"max_buffered_seconds"` // 0 = unbounded
}

// CaptureConfig contains microphone capture parameters
type CaptureConfig struct {
	SampleRate int `yaml:"sample_rate"` // device capture rate, Hz
	BlockSize  int `yaml:"block_size"`  // samples per capture callback
}

// MonitoringConfig contains the optional monitoring HTTP server configuration
type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration: 16 kHz target rate, 500 ms
// chunks, unbounded buffering.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 30,
		},
		Audio: AudioConfig{
			TargetRate:    16000,
			ChunkDuration: 0.5,
		},
		Capture: CaptureConfig{
			SampleRate: 44100,
			BlockSize:  4096,
		},
		Monitoring: MonitoringConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file, applying defaults for
// omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Monitoring.Validate(); err != nil {
		return fmt.Errorf("monitoring config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates API configuration
func (a *APIConfig) Validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.TargetRate < 8000 || a.TargetRate > 48000 {
		return fmt.Errorf("target_rate must be between 8000 and 48000 Hz, got %d", a.TargetRate)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	chunkSamples := float64(a.TargetRate) * a.ChunkDuration
	if chunkSamples != float64(int(chunkSamples)) {
		return fmt.Errorf("chunk_duration %f at %d Hz is not a whole number of samples",
			a.ChunkDuration, a.TargetRate)
	}

	if a.MaxBufferedSeconds < 0 {
		return fmt.Errorf("max_buffered_seconds cannot be negative, got %f", a.MaxBufferedSeconds)
	}

	if a.MaxBufferedSeconds > 0 && a.MaxBufferedSeconds < a.ChunkDuration {
		return fmt.Errorf("max_buffered_seconds (%f) must hold at least one chunk (%f)",
			a.MaxBufferedSeconds, a.ChunkDuration)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", c.SampleRate)
	}

	if c.BlockSize < 64 || c.BlockSize > 65536 {
		return fmt.Errorf("block_size must be between 64 and 65536 samples, got %d", c.BlockSize)
	}

	return nil
}

// Validate validates monitoring configuration
func (m *MonitoringConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
		}

		if m.Address == "" {
			return fmt.Errorf("address cannot be empty when monitoring is enabled")
		}
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

	return nil
}

// GetTimeoutDuration returns the API timeout as a time.Duration
func (a *APIConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetChunkDuration returns the chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetMaxBufferedDuration returns the buffer bound as a time.Duration
func (a *AudioConfig) GetMaxBufferedDuration() time.Duration {
	return time.Duration(a.MaxBufferedSeconds * float64(time.Second))
}
