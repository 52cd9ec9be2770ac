// Package config provides configuration loading and validation for the
// streaming transcription client. It handles YAML-based configuration with
// per-section struct validation.
package config
