package config_test

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cogniscribe/internal/config"
	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
	runtimemock "github.com/MrWong99/cogniscribe/pkg/provider/runtime/mock"
	"github.com/MrWong99/cogniscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/cogniscribe/pkg/provider/stt/mock"
	"github.com/MrWong99/cogniscribe/pkg/provider/tts"
	ttsmock "github.com/MrWong99/cogniscribe/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: info

runtime:
  name: ollama
  base_url: http://localhost:11434
  models: [llama3.2:1b, qwen2.5:0.5b]
  options:
    keep_alive: 10m
  timeout: 90s

speech:
  language: en-US
  sample_rate: 16000
  listen_timeout: 10s
  voice_id: buddy
  input_command: arecord -q -t raw -f S16_LE -r 16000 -c 1
  output_command: aplay -q -t raw -f S16_LE -r 16000 -c 1
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-3
  tts:
    name: elevenlabs
    api_key: el-test
    model: eleven_flash_v2_5

personas:
  - age_group: "Ages 4-7"
    name: Sunny
    greeting: Hi there!
  - age_group: Grown-ups
    name: Sage
    system_prompt: Answer concisely.

resilience:
  max_failures: 3
  reset_timeout: 15s
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Runtime.Name != "ollama" || cfg.Runtime.BaseURL != "http://localhost:11434" {
		t.Errorf("runtime: got %+v", cfg.Runtime.ProviderEntry)
	}
	if want := []string{"llama3.2:1b", "qwen2.5:0.5b"}; !slices.Equal(cfg.Runtime.Models, want) {
		t.Errorf("runtime.models: got %v, want %v", cfg.Runtime.Models, want)
	}
	if cfg.Runtime.Timeout != 90*time.Second {
		t.Errorf("runtime.timeout: got %v", cfg.Runtime.Timeout)
	}
	if cfg.Runtime.Options["keep_alive"] != "10m" {
		t.Errorf("runtime.options.keep_alive: got %v", cfg.Runtime.Options["keep_alive"])
	}
	if cfg.Speech.STT.Name != "deepgram" || cfg.Speech.STT.Model != "nova-3" {
		t.Errorf("speech.stt: got %+v", cfg.Speech.STT)
	}
	if cfg.Speech.ListenTimeout != 10*time.Second {
		t.Errorf("speech.listen_timeout: got %v", cfg.Speech.ListenTimeout)
	}
	if len(cfg.Personas) != 2 || cfg.Personas[1].SystemPrompt != "Answer concisely." {
		t.Errorf("personas: got %+v", cfg.Personas)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 15*time.Second {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("runtime:\n  name: ollama\n  flavour: spicy\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_MinimalIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("runtime:\n  name: ollama\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.STT.Name != "" || len(cfg.Personas) != 0 {
		t.Errorf("expected zero speech and personas, got %+v", cfg)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.SlogLevel(); got != tt.want {
			t.Errorf("%q.SlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateRuntime(config.RuntimeConfig{ProviderEntry: config.ProviderEntry{Name: "nope"}}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("runtime: expected ErrProviderNotRegistered, got %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("stt: expected ErrProviderNotRegistered, got %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("tts: expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotModels []string
	reg.RegisterRuntime("stub", func(cfg config.RuntimeConfig) (runtime.Runtime, error) {
		gotModels = cfg.Models
		return &runtimemock.Runtime{}, nil
	})
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	rt, err := reg.CreateRuntime(config.RuntimeConfig{
		ProviderEntry: config.ProviderEntry{Name: "stub"},
		Models:        []string{"m1"},
	})
	if err != nil || rt == nil {
		t.Fatalf("CreateRuntime: %v", err)
	}
	if !slices.Equal(gotModels, []string{"m1"}) {
		t.Errorf("factory saw models %v", gotModels)
	}
	if p, err := reg.CreateSTT(config.ProviderEntry{Name: "stub"}); err != nil || p == nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if p, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"}); err != nil || p == nil {
		t.Errorf("CreateTTS: %v", err)
	}

	for _, kind := range []string{"runtime", "stt", "tts"} {
		if names := reg.Names(kind); !slices.Equal(names, []string{"stub"}) {
			t.Errorf("Names(%q) = %v", kind, names)
		}
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := errors.New("boom")
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) { return nil, want })

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"}); !errors.Is(err, want) {
		t.Errorf("expected factory error, got %v", err)
	}
}
