package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/cogniscribe/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string // empty means valid
	}{
		{
			name:    "missing runtime",
			yaml:    "server:\n  log_level: info\n",
			wantErr: "runtime.name is required",
		},
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: loud\nruntime:\n  name: ollama\n",
			wantErr: "server.log_level",
		},
		{
			name:    "hosted runtime needs models",
			yaml:    "runtime:\n  name: openai\n",
			wantErr: "runtime.models is required",
		},
		{
			name: "hosted runtime with models",
			yaml: "runtime:\n  name: openai\n  models: [gpt-4o-mini]\n",
		},
		{
			name:    "negative runtime timeout",
			yaml:    "runtime:\n  name: ollama\n  timeout: -1s\n",
			wantErr: "runtime.timeout",
		},
		{
			name:    "sample rate out of range",
			yaml:    "runtime:\n  name: ollama\nspeech:\n  sample_rate: 1000\n",
			wantErr: "speech.sample_rate",
		},
		{
			name:    "negative listen timeout",
			yaml:    "runtime:\n  name: ollama\nspeech:\n  listen_timeout: -5s\n",
			wantErr: "speech.listen_timeout",
		},
		{
			name:    "stt without input command",
			yaml:    "runtime:\n  name: ollama\nspeech:\n  stt:\n    name: deepgram\n",
			wantErr: "speech.input_command",
		},
		{
			name:    "tts without output command",
			yaml:    "runtime:\n  name: ollama\nspeech:\n  tts:\n    name: elevenlabs\n",
			wantErr: "speech.output_command",
		},
		{
			name:    "fallback without primary",
			yaml:    "runtime:\n  name: ollama\nspeech:\n  tts_fallbacks:\n    - name: elevenlabs\n",
			wantErr: "speech.tts_fallbacks requires speech.tts",
		},
		{
			name:    "fallback without name",
			yaml:    "runtime:\n  name: ollama\nspeech:\n  input_command: cat\n  stt:\n    name: deepgram\n  stt_fallbacks:\n    - model: nova-2\n",
			wantErr: "speech.stt_fallbacks[0].name is required",
		},
		{
			name:    "persona without age group",
			yaml:    "runtime:\n  name: ollama\npersonas:\n  - name: Sunny\n",
			wantErr: "personas[0].age_group is required",
		},
		{
			name:    "persona without name",
			yaml:    "runtime:\n  name: ollama\npersonas:\n  - age_group: Kids\n",
			wantErr: "personas[0].name is required",
		},
		{
			name:    "duplicate persona",
			yaml:    "runtime:\n  name: ollama\npersonas:\n  - age_group: Kids\n    name: A\n  - age_group: Kids\n    name: B\n",
			wantErr: "duplicate",
		},
		{
			name:    "negative max failures",
			yaml:    "runtime:\n  name: ollama\nresilience:\n  max_failures: -1\n",
			wantErr: "resilience.max_failures",
		},
		{
			name: "unknown provider only warns",
			yaml: "runtime:\n  name: my-own-runtime\n  models: [x]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
speech:
  sample_rate: 100
personas:
  - age_group: Kids
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"server.log_level", "runtime.name", "speech.sample_rate", "personas[0].name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for kind, want := range map[string]string{"runtime": "ollama", "stt": "deepgram", "tts": "elevenlabs"} {
		if !slices.Contains(config.ValidProviderNames[kind], want) {
			t.Errorf("ValidProviderNames[%q] should contain %q", kind, want)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cogniscribe.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.Name != "ollama" {
		t.Errorf("runtime.name: got %q", cfg.Runtime.Name)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
