package config_test

import (
	"testing"

	"github.com/MrWong99/cogniscribe/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo},
		Runtime:  config.RuntimeConfig{ProviderEntry: config.ProviderEntry{Name: "ollama"}, Models: []string{"a"}},
		Personas: []config.PersonaConfig{{AgeGroup: "Kids", Name: "Sunny"}},
	}
	d := config.Diff(cfg, cfg)
	if d.PersonasChanged || d.LogLevelChanged || d.RestartRequired {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change must not require a restart")
	}
}

func TestDiff_Personas(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Personas: []config.PersonaConfig{
			{AgeGroup: "Kids", Name: "Sunny", Greeting: "Hi!"},
			{AgeGroup: "Teens", Name: "Nova"},
			{AgeGroup: "Adults", Name: "Sage"},
		},
	}
	new := &config.Config{
		Personas: []config.PersonaConfig{
			{AgeGroup: "Kids", Name: "Sunny", Greeting: "Hello!"},
			{AgeGroup: "Teens", Name: "Nova"},
			{AgeGroup: "Seniors", Name: "Elder"},
		},
	}

	d := config.Diff(old, new)
	if !d.PersonasChanged {
		t.Fatal("expected PersonasChanged=true")
	}
	want := []config.PersonaDiff{
		{AgeGroup: "Adults", Removed: true},
		{AgeGroup: "Kids", GreetingChanged: true},
		{AgeGroup: "Seniors", Added: true},
	}
	if len(d.PersonaChanges) != len(want) {
		t.Fatalf("got %d changes, want %d: %+v", len(d.PersonaChanges), len(want), d.PersonaChanges)
	}
	for i := range want {
		if d.PersonaChanges[i] != want[i] {
			t.Errorf("change[%d] = %+v, want %+v", i, d.PersonaChanges[i], want[i])
		}
	}
}

func TestDiff_PersonaFields(t *testing.T) {
	t.Parallel()
	old := &config.Config{Personas: []config.PersonaConfig{{AgeGroup: "Kids", Name: "A", SystemPrompt: "p1"}}}
	new := &config.Config{Personas: []config.PersonaConfig{{AgeGroup: "Kids", Name: "B", SystemPrompt: "p2"}}}

	d := config.Diff(old, new)
	if len(d.PersonaChanges) != 1 {
		t.Fatalf("expected 1 change, got %d", len(d.PersonaChanges))
	}
	pd := d.PersonaChanges[0]
	if !pd.NameChanged || !pd.PromptChanged || pd.GreetingChanged {
		t.Errorf("unexpected diff %+v", pd)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	base := func() *config.Config {
		return &config.Config{
			Runtime: config.RuntimeConfig{ProviderEntry: config.ProviderEntry{Name: "ollama"}, Models: []string{"a"}},
			Speech:  config.SpeechConfig{Language: "en-US"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":1234" }},
		{"runtime models", func(c *config.Config) { c.Runtime.Models = []string{"a", "b"} }},
		{"speech language", func(c *config.Config) { c.Speech.Language = "de-DE" }},
		{"resilience", func(c *config.Config) { c.Resilience.MaxFailures = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := base(), base()
			tt.mutate(new)
			if d := config.Diff(old, new); !d.RestartRequired {
				t.Error("expected RestartRequired=true")
			}
		})
	}
}
