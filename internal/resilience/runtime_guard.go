package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
)

// GuardedRuntime puts a [CircuitBreaker] in front of a [runtime.Runtime].
//
// Unary calls count as one outcome each. For downloads and generations the
// outcome is decided when the stream ends: a final item with Err set is a
// failure, a clean close is a success. Requests for unknown models and
// generation before a load are caller errors and never trip the breaker.
type GuardedRuntime struct {
	rt runtime.Runtime
	cb *CircuitBreaker
}

var (
	_ runtime.Runtime = (*GuardedRuntime)(nil)
	_ runtime.Pinger  = (*GuardedRuntime)(nil)
)

// NewGuardedRuntime wraps rt. cfg.Ignore is extended with the runtime's
// caller-error sentinels.
func NewGuardedRuntime(rt runtime.Runtime, cfg CircuitBreakerConfig) *GuardedRuntime {
	ignore := cfg.Ignore
	cfg.Ignore = func(err error) bool {
		if errors.Is(err, context.Canceled) ||
			errors.Is(err, runtime.ErrUnknownModel) ||
			errors.Is(err, runtime.ErrNoModelLoaded) {
			return true
		}
		return ignore != nil && ignore(err)
	}
	if cfg.Name == "" {
		cfg.Name = "runtime"
	}
	return &GuardedRuntime{rt: rt, cb: NewCircuitBreaker(cfg)}
}

// Breaker exposes the underlying breaker, for readiness checks.
func (g *GuardedRuntime) Breaker() *CircuitBreaker { return g.cb }

// Unwrap returns the guarded runtime.
func (g *GuardedRuntime) Unwrap() runtime.Runtime { return g.rt }

func (g *GuardedRuntime) rejected() error {
	return fmt.Errorf("resilience: %s unavailable: %w", g.cb.Name(), ErrCircuitOpen)
}

// ListModels implements runtime.Runtime.
func (g *GuardedRuntime) ListModels(ctx context.Context) ([]runtime.ModelDescriptor, error) {
	var models []runtime.ModelDescriptor
	err := g.cb.Execute(func() error {
		var err error
		models, err = g.rt.ListModels(ctx)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, g.rejected()
	}
	return models, err
}

// LoadModel implements runtime.Runtime.
func (g *GuardedRuntime) LoadModel(ctx context.Context, id string) error {
	err := g.cb.Execute(func() error { return g.rt.LoadModel(ctx, id) })
	if errors.Is(err, ErrCircuitOpen) {
		return g.rejected()
	}
	return err
}

// DownloadModel implements runtime.Runtime.
func (g *GuardedRuntime) DownloadModel(ctx context.Context, id string) (<-chan runtime.Progress, error) {
	done, err := g.cb.Allow()
	if err != nil {
		return nil, g.rejected()
	}
	src, err := g.rt.DownloadModel(ctx, id)
	if err != nil {
		done(err)
		return nil, err
	}
	return guardStream(ctx, src, func(p runtime.Progress) error { return p.Err }, done), nil
}

// GenerateStream implements runtime.Runtime.
func (g *GuardedRuntime) GenerateStream(ctx context.Context, prompt string) (<-chan runtime.Token, error) {
	done, err := g.cb.Allow()
	if err != nil {
		return nil, g.rejected()
	}
	src, err := g.rt.GenerateStream(ctx, prompt)
	if err != nil {
		done(err)
		return nil, err
	}
	return guardStream(ctx, src, func(t runtime.Token) error { return t.Err }, done), nil
}

// Ping checks the backend without consulting the breaker, so readiness
// reflects the backend itself. Runtimes without a Ping are probed with
// ListModels.
func (g *GuardedRuntime) Ping(ctx context.Context) error {
	if p, ok := g.rt.(runtime.Pinger); ok {
		return p.Ping(ctx)
	}
	_, err := g.rt.ListModels(ctx)
	return err
}

// guardStream forwards src unchanged and reports the stream's outcome to done
// once it ends. If ctx ends first, src is drained in the background.
func guardStream[T any](ctx context.Context, src <-chan T, errOf func(T) error, done func(error)) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		var streamErr error
		for item := range src {
			if err := errOf(item); err != nil {
				streamErr = err
			}
			select {
			case out <- item:
			case <-ctx.Done():
				done(ctx.Err())
				for range src {
				}
				return
			}
		}
		done(streamErr)
	}()
	return out
}
