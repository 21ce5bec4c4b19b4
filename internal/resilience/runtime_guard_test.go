package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
	"github.com/MrWong99/cogniscribe/pkg/provider/runtime/mock"
)

func drainTokens(ch <-chan runtime.Token) (text string, err error) {
	for tok := range ch {
		if tok.Err != nil {
			err = tok.Err
			continue
		}
		text += tok.Text
	}
	return text, err
}

func TestGuardedRuntime_PassesThrough(t *testing.T) {
	t.Parallel()
	rt := &mock.Runtime{
		Models:            []runtime.ModelDescriptor{{ID: "m1", Category: runtime.CategoryLanguage}},
		Tokens:            []string{"Hel", "lo"},
		DownloadFractions: []float64{0.5, 1},
	}
	g := NewGuardedRuntime(rt, CircuitBreakerConfig{MaxFailures: 1})
	ctx := context.Background()

	models, err := g.ListModels(ctx)
	if err != nil || len(models) != 1 {
		t.Fatalf("ListModels = %v, %v", models, err)
	}
	if err := g.LoadModel(ctx, "m1"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	prog, err := g.DownloadModel(ctx, "m1")
	if err != nil {
		t.Fatalf("DownloadModel: %v", err)
	}
	var fractions []float64
	for p := range prog {
		fractions = append(fractions, p.Fraction)
	}
	if len(fractions) != 2 || fractions[1] != 1 {
		t.Errorf("fractions = %v", fractions)
	}

	toks, err := g.GenerateStream(ctx, "hi")
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if text, err := drainTokens(toks); text != "Hello" || err != nil {
		t.Errorf("stream = %q, %v", text, err)
	}
	if g.Breaker().State() != StateClosed {
		t.Errorf("state = %v, want closed", g.Breaker().State())
	}
	if g.Unwrap() != rt {
		t.Error("Unwrap returned a different runtime")
	}
}

func TestGuardedRuntime_StreamFailureTrips(t *testing.T) {
	t.Parallel()
	rt := &mock.Runtime{Tokens: []string{"a"}, GenerateStreamErr: errors.New("oom")}
	g := NewGuardedRuntime(rt, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for range 2 {
		toks, err := g.GenerateStream(ctx, "p")
		if err != nil {
			t.Fatalf("GenerateStream: %v", err)
		}
		if _, err := drainTokens(toks); err == nil {
			t.Fatal("expected stream error")
		}
	}
	// The outcome is recorded after the last item is forwarded.
	deadline := time.Now().Add(time.Second)
	for g.Breaker().State() != StateOpen && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.Breaker().State() != StateOpen {
		t.Fatalf("state = %v, want open", g.Breaker().State())
	}

	_, err := g.GenerateStream(ctx, "p")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if _, err := g.ListModels(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("ListModels err = %v, want ErrCircuitOpen", err)
	}
	if _, _, prompts := rt.Calls(); len(prompts) != 2 {
		t.Errorf("runtime saw %d prompts, want 2", len(prompts))
	}
}

func TestGuardedRuntime_CallerErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	rt := &mock.Runtime{
		LoadErr:     fmt.Errorf("load x: %w", runtime.ErrUnknownModel),
		GenerateErr: runtime.ErrNoModelLoaded,
	}
	g := NewGuardedRuntime(rt, CircuitBreakerConfig{MaxFailures: 1})
	ctx := context.Background()

	for range 3 {
		if err := g.LoadModel(ctx, "x"); !errors.Is(err, runtime.ErrUnknownModel) {
			t.Fatalf("LoadModel err = %v", err)
		}
		if _, err := g.GenerateStream(ctx, "p"); !errors.Is(err, runtime.ErrNoModelLoaded) {
			t.Fatalf("GenerateStream err = %v", err)
		}
	}
	if g.Breaker().State() != StateClosed {
		t.Fatalf("state = %v, want closed", g.Breaker().State())
	}
}

func TestGuardedRuntime_CancelledStream(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	rt := &mock.Runtime{Tokens: []string{"a", "b"}, Gate: gate}
	g := NewGuardedRuntime(rt, CircuitBreakerConfig{MaxFailures: 1})

	ctx, cancel := context.WithCancel(context.Background())
	toks, err := g.GenerateStream(ctx, "p")
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	cancel()

	select {
	case _, ok := <-toks:
		for ok {
			_, ok = <-toks
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
	if g.Breaker().State() != StateClosed {
		t.Errorf("cancellation tripped the breaker")
	}
}

func TestGuardedRuntime_PingFallsBackToList(t *testing.T) {
	t.Parallel()
	rt := &mock.Runtime{ListErr: errors.New("connection refused")}
	g := NewGuardedRuntime(rt, CircuitBreakerConfig{})

	if err := g.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	rt.ListErr = nil
	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
