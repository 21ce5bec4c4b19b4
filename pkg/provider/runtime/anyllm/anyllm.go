// Package anyllm provides a model runtime backed by hosted or self-hosted
// chat backends through github.com/mozilla-ai/any-llm-go.
//
// Hosted models need no download, so every configured model is reported as
// downloaded and DownloadModel completes immediately. LoadModel only selects
// which configured model answers subsequent prompts.
//
// Usage:
//
//	rt, err := anyllm.New("openai", []string{"gpt-4o-mini"}, anyllmlib.WithAPIKey("sk-..."))
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
)

// Backends lists the backend names accepted by New.
var Backends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature for every generation.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = &t
	}
}

// WithMaxTokens caps the length of every generation.
func WithMaxTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = &n
		}
	}
}

// Provider implements runtime.Runtime over an any-llm-go backend.
type Provider struct {
	name        string
	backend     anyllmlib.Provider
	models      []string
	temperature *float64
	maxTokens   *int

	mu     sync.RWMutex
	loaded string
}

// Compile-time interface assertion.
var _ runtime.Runtime = (*Provider)(nil)

// New creates a Provider for the named backend serving the given models.
// backendOpts are any-llm-go options such as anyllmlib.WithAPIKey. Without an
// API key option, the backend falls back to its usual environment variable.
func New(backendName string, models []string, backendOpts []anyllmlib.Option, opts ...Option) (*Provider, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backend name must not be empty")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("anyllm: at least one model is required")
	}
	p := &Provider{name: strings.ToLower(backendName), models: slices.Clone(models)}
	for _, o := range opts {
		o(p)
	}
	b, err := createBackend(p.name, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}
	p.backend = b
	return p, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch name {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: %s", name, strings.Join(Backends, ", "))
	}
}

// ListModels reports every configured model as a downloaded language model.
func (p *Provider) ListModels(_ context.Context) ([]runtime.ModelDescriptor, error) {
	out := make([]runtime.ModelDescriptor, 0, len(p.models))
	for _, m := range p.models {
		out = append(out, runtime.ModelDescriptor{
			ID:           m,
			Name:         p.name + "/" + m,
			Category:     runtime.CategoryLanguage,
			IsDownloaded: true,
		})
	}
	return out, nil
}

// DownloadModel completes immediately for configured models.
func (p *Provider) DownloadModel(_ context.Context, id string) (<-chan runtime.Progress, error) {
	if !slices.Contains(p.models, id) {
		return nil, fmt.Errorf("anyllm: download %q: %w", id, runtime.ErrUnknownModel)
	}
	ch := make(chan runtime.Progress, 1)
	ch <- runtime.Progress{Fraction: 1}
	close(ch)
	return ch, nil
}

// LoadModel selects id as the generation target.
func (p *Provider) LoadModel(_ context.Context, id string) error {
	if !slices.Contains(p.models, id) {
		return fmt.Errorf("anyllm: load %q: %w", id, runtime.ErrUnknownModel)
	}
	p.mu.Lock()
	p.loaded = id
	p.mu.Unlock()
	return nil
}

// GenerateStream sends prompt as a single user message and streams the
// content deltas of the reply.
func (p *Provider) GenerateStream(ctx context.Context, prompt string) (<-chan runtime.Token, error) {
	p.mu.RLock()
	model := p.loaded
	p.mu.RUnlock()
	if model == "" {
		return nil, runtime.ErrNoModelLoaded
	}

	chunks, errs := p.backend.CompletionStream(ctx, p.buildParams(model, prompt))

	ch := make(chan runtime.Token, 32)
	go func() {
		defer close(ch)
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case ch <- runtime.Token{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		if err := <-errs; err != nil {
			select {
			case ch <- runtime.Token{Err: fmt.Errorf("anyllm: stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// buildParams converts a prompt into any-llm completion parameters.
func (p *Provider) buildParams(model, prompt string) anyllmlib.CompletionParams {
	return anyllmlib.CompletionParams{
		Model: model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleUser, Content: prompt},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
}
