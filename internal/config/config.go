// Package config provides the configuration schema, loader, and provider registry
// for the cogniscribe voice chat application.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown and empty levels map
// to [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Speech     SpeechConfig     `yaml:"speech"`
	Personas   []PersonaConfig  `yaml:"personas"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds the ops HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the ops server serving /healthz,
	// /readyz and /metrics (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// RuntimeConfig selects the model runtime that serves the catalog, downloads,
// loads, and generation.
type RuntimeConfig struct {
	ProviderEntry `yaml:",inline"`

	// Models lists the model ids offered in the catalog. For ollama these are
	// offered for download when not installed yet; for hosted backends they
	// are the whole catalog.
	Models []string `yaml:"models"`

	// Timeout bounds a single model load. Zero uses the default.
	Timeout time.Duration `yaml:"timeout"`
}

// SpeechConfig configures speech input and output. Leaving STT or TTS
// unnamed disables that direction.
type SpeechConfig struct {
	// Language is the BCP-47 code used for recognition (e.g., "en-US").
	Language string `yaml:"language"`

	// SampleRate is the PCM rate of captured and played audio. Zero means 16000.
	SampleRate int `yaml:"sample_rate"`

	// ListenTimeout ends a listening session when no speech is heard in time.
	ListenTimeout time.Duration `yaml:"listen_timeout"`

	// VoiceID selects the TTS voice.
	VoiceID string `yaml:"voice_id"`

	// InputCommand captures raw PCM on stdout (e.g., "arecord -q -t raw ...").
	InputCommand string `yaml:"input_command"`

	// OutputCommand plays raw PCM read from stdin (e.g., "aplay -q -t raw ...").
	OutputCommand string `yaml:"output_command"`

	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// STTFallbacks and TTSFallbacks are tried in order when the primary
	// provider fails to open a stream or its circuit is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// PersonaConfig overrides or adds the persona used for an age group. Name is
// required; an empty prompt or greeting keeps the built-in value.
type PersonaConfig struct {
	AgeGroup     string `yaml:"age_group"`
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	Greeting     string `yaml:"greeting"`
}

// ResilienceConfig tunes the circuit breaker guarding the runtime.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit. Zero uses the default.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
