// Package ollama provides a model runtime backed by a local Ollama server.
//
// Ollama hosts quantised models on the user's own machine, which makes it the
// closest desktop equivalent of an on-device model SDK: models are pulled
// (downloaded) once, loaded into memory on demand and then stream tokens.
//
// The catalog merges two sources. Models already installed on the server are
// reported as downloaded; models named in the configuration but not yet
// installed are reported as available for download.
//
// Example:
//
//	rt, err := ollama.New("http://localhost:11434", ollama.WithModels("llama3.2:1b"))
//	ch, err := rt.DownloadModel(ctx, "llama3.2:1b")
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
)

// defaultKeepAlive is how long Ollama keeps a loaded model in memory after
// the last request.
const defaultKeepAlive = 30 * time.Minute

// client is the subset of *api.Client used by Provider. Tests substitute a
// fake.
type client interface {
	List(ctx context.Context) (*api.ListResponse, error)
	Pull(ctx context.Context, req *api.PullRequest, fn api.PullProgressFunc) error
	Generate(ctx context.Context, req *api.GenerateRequest, fn api.GenerateResponseFunc) error
	Heartbeat(ctx context.Context) error
}

// Option is a functional option for configuring the Ollama Provider.
type Option func(*Provider)

// WithModels sets the models offered for download when not yet installed.
func WithModels(ids ...string) Option {
	return func(p *Provider) {
		p.offered = append(p.offered, ids...)
	}
}

// WithKeepAlive sets how long a loaded model stays resident.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.keepAlive = d
		}
	}
}

// WithOptions sets model parameters (temperature, num_ctx, ...) passed with
// every generation request.
func WithOptions(opts map[string]any) Option {
	return func(p *Provider) {
		p.options = opts
	}
}

// WithHTTPClient overrides the HTTP client used to reach the server.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements runtime.Runtime on top of the Ollama HTTP API.
type Provider struct {
	client     client
	httpClient *http.Client
	offered    []string
	keepAlive  time.Duration
	options    map[string]any

	mu     sync.RWMutex
	loaded string
}

// Compile-time interface assertions.
var (
	_ runtime.Runtime = (*Provider)(nil)
	_ runtime.Pinger  = (*Provider)(nil)
)

// New creates a Provider talking to the server at baseURL. An empty baseURL
// uses OLLAMA_HOST or the default local address.
func New(baseURL string, opts ...Option) (*Provider, error) {
	p := &Provider{keepAlive: defaultKeepAlive}
	for _, o := range opts {
		o(p)
	}

	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: client from environment: %w", err)
		}
		p.client = c
		return p, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base URL %q: %w", baseURL, err)
	}
	hc := p.httpClient
	if hc == nil {
		hc = http.DefaultClient
	}
	p.client = api.NewClient(u, hc)
	return p, nil
}

// ListModels returns installed models followed by offered models that are
// not installed yet.
func (p *Provider) ListModels(ctx context.Context) ([]runtime.ModelDescriptor, error) {
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama: list models: %w", err)
	}

	installed := make(map[string]bool, len(resp.Models))
	out := make([]runtime.ModelDescriptor, 0, len(resp.Models)+len(p.offered))
	for _, m := range resp.Models {
		installed[normalize(m.Name)] = true
		out = append(out, runtime.ModelDescriptor{
			ID:           m.Name,
			Name:         displayName(m),
			Category:     classify(m.Name, m.Details.Family, m.Details.Families),
			IsDownloaded: true,
			Size:         m.Size,
		})
	}
	// Offered models use the tagged name the server reports once pulled, so
	// the id stays stable across the download.
	for _, id := range p.offered {
		id = normalize(id)
		if installed[id] {
			continue
		}
		installed[id] = true
		out = append(out, runtime.ModelDescriptor{
			ID:       id,
			Name:     id,
			Category: classify(id, "", nil),
		})
	}
	return out, nil
}

// DownloadModel pulls the model and reports aggregated layer progress. The
// reported fraction never decreases within one download.
func (p *Provider) DownloadModel(ctx context.Context, id string) (<-chan runtime.Progress, error) {
	if id == "" {
		return nil, fmt.Errorf("ollama: download: %w", runtime.ErrUnknownModel)
	}

	ch := make(chan runtime.Progress, 16)
	go func() {
		defer close(ch)

		agg := newPullAggregator()
		send := func(pr runtime.Progress) bool {
			select {
			case ch <- pr:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := p.client.Pull(ctx, &api.PullRequest{Model: id}, func(resp api.ProgressResponse) error {
			if f, ok := agg.observe(resp); ok {
				if !send(runtime.Progress{Fraction: f}) {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			send(runtime.Progress{Err: fmt.Errorf("ollama: pull %q: %w", id, err)})
			return
		}
		if agg.last < 1 {
			send(runtime.Progress{Fraction: 1})
		}
	}()
	return ch, nil
}

// LoadModel asks the server to load the model into memory by issuing an
// empty generation request, then makes it the generation target.
func (p *Provider) LoadModel(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("ollama: load: %w", runtime.ErrUnknownModel)
	}
	req := &api.GenerateRequest{
		Model:     id,
		KeepAlive: &api.Duration{Duration: p.keepAlive},
	}
	if err := p.client.Generate(ctx, req, func(api.GenerateResponse) error { return nil }); err != nil {
		return fmt.Errorf("ollama: load %q: %w", id, err)
	}

	p.mu.Lock()
	p.loaded = id
	p.mu.Unlock()
	return nil
}

// GenerateStream streams the completion for prompt from the loaded model.
func (p *Provider) GenerateStream(ctx context.Context, prompt string) (<-chan runtime.Token, error) {
	p.mu.RLock()
	model := p.loaded
	p.mu.RUnlock()
	if model == "" {
		return nil, runtime.ErrNoModelLoaded
	}

	req := &api.GenerateRequest{
		Model:     model,
		Prompt:    prompt,
		KeepAlive: &api.Duration{Duration: p.keepAlive},
		Options:   p.options,
	}

	ch := make(chan runtime.Token, 32)
	go func() {
		defer close(ch)
		err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			if resp.Response == "" {
				return nil
			}
			select {
			case ch <- runtime.Token{Text: resp.Response}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- runtime.Token{Err: fmt.Errorf("ollama: generate: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// Loaded returns the id of the model targeted by GenerateStream, or "".
func (p *Provider) Loaded() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Ping checks that the server is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama: heartbeat: %w", err)
	}
	return nil
}

// pullAggregator folds per-layer pull progress into one monotonic fraction.
type pullAggregator struct {
	total     map[string]int64
	completed map[string]int64
	last      float64
}

func newPullAggregator() *pullAggregator {
	return &pullAggregator{
		total:     make(map[string]int64),
		completed: make(map[string]int64),
	}
}

// observe records resp and returns the new overall fraction if it advanced.
func (a *pullAggregator) observe(resp api.ProgressResponse) (float64, bool) {
	if resp.Status == "success" {
		if a.last >= 1 {
			return 0, false
		}
		a.last = 1
		return 1, true
	}
	if resp.Digest == "" || resp.Total <= 0 {
		return 0, false
	}
	a.total[resp.Digest] = resp.Total
	a.completed[resp.Digest] = resp.Completed

	var total, done int64
	for d, t := range a.total {
		total += t
		done += a.completed[d]
	}
	f := runtime.ClampFraction(float64(done) / float64(total))
	if f <= a.last {
		return 0, false
	}
	a.last = f
	return f, true
}

// embeddingFamilies lists model families that only produce embeddings.
var embeddingFamilies = map[string]bool{
	"bert":       true,
	"nomic-bert": true,
	"jina-bert":  true,
}

// classify maps an Ollama model to a catalog category.
func classify(name, family string, families []string) runtime.Category {
	if embeddingFamilies[family] {
		return runtime.CategoryEmbedding
	}
	for _, f := range families {
		if embeddingFamilies[f] {
			return runtime.CategoryEmbedding
		}
	}
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "embed"), strings.Contains(lower, "minilm"):
		return runtime.CategoryEmbedding
	case strings.Contains(lower, "whisper"):
		return runtime.CategorySpeechRecognition
	}
	return runtime.CategoryLanguage
}

// displayName renders "name (size, quant)" from the model details.
func displayName(m api.ListModelResponse) string {
	var parts []string
	if m.Details.ParameterSize != "" {
		parts = append(parts, m.Details.ParameterSize)
	}
	if m.Details.QuantizationLevel != "" {
		parts = append(parts, m.Details.QuantizationLevel)
	}
	if len(parts) == 0 {
		return m.Name
	}
	return m.Name + " (" + strings.Join(parts, ", ") + ")"
}

// normalize adds the implicit ":latest" tag so that "llama3.2" and
// "llama3.2:latest" compare equal.
func normalize(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return id + ":latest"
}
