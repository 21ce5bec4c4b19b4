// Package app wires the configured providers into chat sessions.
//
// [App] owns everything that outlives a single conversation: the model
// runtime, the speech capabilities, the persona book, metrics and the
// closers of provider resources. Conversations themselves are run by the
// [SessionManager], which allows one active session at a time.
//
// For testing, pass mock providers and inject metrics or a logger via
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/cogniscribe/internal/chat"
	"github.com/MrWong99/cogniscribe/internal/config"
	"github.com/MrWong99/cogniscribe/internal/observe"
	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
	"github.com/MrWong99/cogniscribe/pkg/provider/speech"
)

// Providers holds the capabilities a session talks to. Runtime is required.
// A nil Recognizer or Synthesizer disables that speech direction.
type Providers struct {
	Runtime     runtime.Runtime
	Recognizer  speech.Recognizer
	Synthesizer speech.Synthesizer
}

// App owns provider lifetimes and the session manager.
type App struct {
	providers   Providers
	personas    atomic.Pointer[chat.PersonaBook]
	metrics     *observe.Metrics
	log         *slog.Logger
	loadTimeout time.Duration
	sessions    *SessionManager

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithCloser registers fn to be called on Shutdown, after the active session
// has stopped. Closers run in reverse registration order.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App from cfg and providers.
func New(cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if providers.Runtime == nil {
		return nil, errors.New("app: a model runtime is required")
	}
	if providers.Recognizer == nil {
		providers.Recognizer = speech.UnavailableRecognizer{}
	}
	if providers.Synthesizer == nil {
		providers.Synthesizer = speech.UnavailableSynthesizer{}
	}

	a := &App{
		providers:   providers,
		loadTimeout: cfg.Runtime.Timeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	a.personas.Store(PersonaBook(cfg.Personas))
	a.sessions = newSessionManager(a)
	return a, nil
}

// PersonaBook builds the persona book from the configured overrides.
func PersonaBook(pcs []config.PersonaConfig) *chat.PersonaBook {
	overrides := make([]chat.Persona, 0, len(pcs))
	for _, pc := range pcs {
		overrides = append(overrides, chat.Persona{
			AgeGroup:     pc.AgeGroup,
			Name:         pc.Name,
			SystemPrompt: pc.SystemPrompt,
			Greeting:     pc.Greeting,
		})
	}
	return chat.NewPersonaBook(overrides...)
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Personas returns the persona book used by the next session.
func (a *App) Personas() *chat.PersonaBook { return a.personas.Load() }

// ApplyConfig applies the hot-reloadable parts of a configuration change and
// returns the diff between old and new. Persona changes take effect for the
// next session; the running session keeps its persona. Changes that need a
// restart are only reported.
func (a *App) ApplyConfig(old, new *config.Config) config.ConfigDiff {
	d := config.Diff(old, new)
	if d.PersonasChanged {
		a.personas.Store(PersonaBook(new.Personas))
		a.log.Info("personas reloaded", "changes", len(d.PersonaChanges))
	}
	if d.RestartRequired {
		a.log.Warn("configuration change requires a restart to take effect")
	}
	return d
}

// Shutdown stops the active session, then runs the registered closers. Safe
// to call more than once; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.sessions.IsActive() {
			if err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
				errs = append(errs, fmt.Errorf("app: stop session: %w", err))
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		a.log.Info("app shut down")
	})
	return errors.Join(errs...)
}
