package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cogniscribe/internal/app"
	"github.com/MrWong99/cogniscribe/internal/config"
	"github.com/MrWong99/cogniscribe/internal/resilience"
	"github.com/MrWong99/cogniscribe/pkg/audio"
	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
	"github.com/MrWong99/cogniscribe/pkg/provider/runtime/anyllm"
	"github.com/MrWong99/cogniscribe/pkg/provider/runtime/ollama"
	"github.com/MrWong99/cogniscribe/pkg/provider/speech/recognizer"
	"github.com/MrWong99/cogniscribe/pkg/provider/speech/synthesizer"
	"github.com/MrWong99/cogniscribe/pkg/provider/stt"
	"github.com/MrWong99/cogniscribe/pkg/provider/stt/deepgram"
	"github.com/MrWong99/cogniscribe/pkg/provider/tts"
	"github.com/MrWong99/cogniscribe/pkg/provider/tts/elevenlabs"
)

// hostedBackends are the any-llm-go backends offered as runtimes. They all
// share the same pattern: optional APIKey + optional BaseURL.
var hostedBackends = []string{
	"openai", "anthropic", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Runtime ───────────────────────────────────────────────────────────────

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterRuntime("ollama", func(rc config.RuntimeConfig) (runtime.Runtime, error) {
		opts := []ollama.Option{ollama.WithModels(rc.Models...)}
		if ka := optString(rc.Options, "keep_alive"); ka != "" {
			d, err := time.ParseDuration(ka)
			if err != nil {
				return nil, fmt.Errorf("runtime.options.keep_alive: %w", err)
			}
			opts = append(opts, ollama.WithKeepAlive(d))
		}
		if params, ok := rc.Options["parameters"].(map[string]any); ok {
			opts = append(opts, ollama.WithOptions(params))
		}
		return ollama.New(rc.BaseURL, opts...)
	})

	for _, backend := range hostedBackends {
		reg.RegisterRuntime(backend, func(rc config.RuntimeConfig) (runtime.Runtime, error) {
			var backendOpts []anyllmlib.Option
			if rc.APIKey != "" {
				backendOpts = append(backendOpts, anyllmlib.WithAPIKey(rc.APIKey))
			}
			if rc.BaseURL != "" {
				backendOpts = append(backendOpts, anyllmlib.WithBaseURL(rc.BaseURL))
			}
			var opts []anyllm.Option
			if t, ok := optFloat(rc.Options, "temperature"); ok {
				opts = append(opts, anyllm.WithTemperature(t))
			}
			if n, ok := optFloat(rc.Options, "max_tokens"); ok {
				opts = append(opts, anyllm.WithMaxTokens(int(n)))
			}
			return anyllm.New(backend, rc.Models, backendOpts, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if ms, ok := optFloat(entry.Options, "endpointing_ms"); ok {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"runtime", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// builtProviders is everything buildProviders creates.
type builtProviders struct {
	providers app.Providers

	// guard is the circuit-breaker wrapper around the runtime; it is also
	// the readiness probe target.
	guard *resilience.GuardedRuntime

	// closers release speech resources after the session ended.
	closers []func() error
}

// buildProviders instantiates the runtime and the speech capabilities named
// in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*builtProviders, error) {
	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
	}

	rt, err := reg.CreateRuntime(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("create runtime %q: %w", cfg.Runtime.Name, err)
	}
	slog.Info("provider created", "kind", "runtime", "name", cfg.Runtime.Name)

	b := &builtProviders{guard: resilience.NewGuardedRuntime(rt, breaker)}
	b.providers.Runtime = b.guard

	sp := cfg.Speech
	format := audio.Format{SampleRate: sp.SampleRate, Channels: 1}
	if format.SampleRate == 0 {
		format.SampleRate = 16000
	}

	if sp.STT.Name != "" {
		p, err := buildSTT(reg, sp.STT, sp.STTFallbacks, breaker)
		if err != nil {
			return nil, err
		}
		src, err := audio.NewCommandSource(sp.InputCommand, format)
		if err != nil {
			return nil, fmt.Errorf("speech input: %w", err)
		}
		rec := recognizer.New(p, src, recognizer.Config{
			Language:      sp.Language,
			SampleRate:    format.SampleRate,
			ListenTimeout: sp.ListenTimeout,
		})
		b.providers.Recognizer = rec
		b.closers = append(b.closers, rec.Close)
	}

	if sp.TTS.Name != "" {
		p, err := buildTTS(reg, sp.TTS, sp.TTSFallbacks, breaker)
		if err != nil {
			return nil, err
		}
		sink, err := audio.NewCommandSink(sp.OutputCommand, format)
		if err != nil {
			return nil, fmt.Errorf("speech output: %w", err)
		}
		syn := synthesizer.New(p, sink, synthesizer.Config{
			Voice:  tts.VoiceProfile{ID: sp.VoiceID, Provider: sp.TTS.Name},
			Format: format,
		})
		b.providers.Synthesizer = syn
		b.closers = append(b.closers, syn.Close)
	}

	return b, nil
}

// buildSTT creates the primary STT provider and, when fallbacks are
// configured, wraps it in a failover group.
func buildSTT(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry, breaker resilience.CircuitBreakerConfig) (stt.Provider, error) {
	p, err := reg.CreateSTT(primary)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}

	group := resilience.NewSTTFallback(p, primary.Name, resilience.FallbackConfig{CircuitBreaker: breaker})
	for _, fb := range fallbacks {
		fp, err := reg.CreateSTT(fb)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not registered, skipping", "kind", "stt", "name", fb.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, fp)
	}
	slog.Info("stt failover enabled", "order", group.Names())
	return group, nil
}

// buildTTS is the TTS counterpart of buildSTT.
func buildTTS(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry, breaker resilience.CircuitBreakerConfig) (tts.Provider, error) {
	p, err := reg.CreateTTS(primary)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}

	group := resilience.NewTTSFallback(p, primary.Name, resilience.FallbackConfig{CircuitBreaker: breaker})
	for _, fb := range fallbacks {
		fp, err := reg.CreateTTS(fb)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not registered, skipping", "kind", "tts", "name", fb.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, fp)
	}
	slog.Info("tts failover enabled", "order", group.Names())
	return group, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a numeric option. YAML decodes integers as int and
// decimals as float64; both are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
