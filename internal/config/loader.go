package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"runtime": {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":     {"deepgram"},
	"tts":     {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Runtime
	if cfg.Runtime.Name == "" {
		errs = append(errs, errors.New("runtime.name is required"))
	}
	if cfg.Runtime.Timeout < 0 {
		errs = append(errs, fmt.Errorf("runtime.timeout %s must not be negative", cfg.Runtime.Timeout))
	}
	if cfg.Runtime.Name != "" && cfg.Runtime.Name != "ollama" && len(cfg.Runtime.Models) == 0 {
		errs = append(errs, fmt.Errorf("runtime.models is required for runtime %q", cfg.Runtime.Name))
	}

	validateProviderName("runtime", cfg.Runtime.Name)
	validateProviderName("stt", cfg.Speech.STT.Name)
	validateProviderName("tts", cfg.Speech.TTS.Name)

	// Speech
	sp := cfg.Speech
	if sp.SampleRate != 0 && (sp.SampleRate < 8000 || sp.SampleRate > 48000) {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d is out of range [8000, 48000]", sp.SampleRate))
	}
	if sp.ListenTimeout < 0 {
		errs = append(errs, fmt.Errorf("speech.listen_timeout %s must not be negative", sp.ListenTimeout))
	}
	if sp.STT.Name != "" && sp.InputCommand == "" {
		errs = append(errs, errors.New("speech.input_command is required when speech.stt is configured"))
	}
	if sp.TTS.Name != "" && sp.OutputCommand == "" {
		errs = append(errs, errors.New("speech.output_command is required when speech.tts is configured"))
	}
	for kind, fbs := range map[string][]ProviderEntry{"stt": sp.STTFallbacks, "tts": sp.TTSFallbacks} {
		primary := sp.STT.Name
		if kind == "tts" {
			primary = sp.TTS.Name
		}
		if len(fbs) > 0 && primary == "" {
			errs = append(errs, fmt.Errorf("speech.%s_fallbacks requires speech.%s", kind, kind))
		}
		for i, fb := range fbs {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("speech.%s_fallbacks[%d].name is required", kind, i))
			}
			validateProviderName(kind, fb.Name)
		}
	}
	if sp.STT.Name == "" && sp.TTS.Name == "" {
		slog.Warn("no speech providers configured; listening and read-aloud are disabled")
	}

	// Personas
	seen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.AgeGroup == "" {
			errs = append(errs, fmt.Errorf("%s.age_group is required", prefix))
		} else {
			if prev, ok := seen[p.AgeGroup]; ok {
				errs = append(errs, fmt.Errorf("%s.age_group %q is a duplicate of personas[%d]", prefix, p.AgeGroup, prev))
			}
			seen[p.AgeGroup] = i
		}
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
