package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cogniscribe/internal/app"
	"github.com/MrWong99/cogniscribe/internal/chat"
	rtmock "github.com/MrWong99/cogniscribe/pkg/provider/runtime/mock"
	speechmock "github.com/MrWong99/cogniscribe/pkg/provider/speech/mock"
)

func newTestSessionManager(t *testing.T) (*app.SessionManager, *rtmock.Runtime) {
	t.Helper()
	rt := testRuntime()
	a, err := app.New(testConfig(), app.Providers{
		Runtime:     rt,
		Recognizer:  &speechmock.Recognizer{},
		Synthesizer: &speechmock.Synthesizer{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a.Sessions(), rt
}

// waitState polls the orchestrator's store until cond holds.
func waitState(t *testing.T, orch *chat.Orchestrator, cond func(chat.State) bool) chat.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := orch.Store().Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never reached; last: %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()
	sm, rt := newTestSessionManager(t)

	orch, err := sm.Start(context.Background(), "Ages 8-12")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sm.IsActive() {
		t.Fatal("expected session to be active after Start")
	}

	info := sm.Info()
	if info.AgeGroup != "Ages 8-12" {
		t.Errorf("AgeGroup = %q", info.AgeGroup)
	}
	if info.DisplayName != "Captain Quest" {
		t.Errorf("DisplayName = %q, want persona override", info.DisplayName)
	}
	if info.SessionID == "" {
		t.Error("SessionID should not be empty")
	}
	if sm.Orchestrator() != orch {
		t.Error("Orchestrator() should return the running session")
	}

	// The greeting is the first message and the downloaded model auto-loads.
	s := waitState(t, orch, func(s chat.State) bool { return s.ActiveModelID != "" })
	if s.ActiveModelID != "llama3.2:1b" {
		t.Errorf("ActiveModelID = %q", s.ActiveModelID)
	}
	if len(s.Messages) == 0 || s.Messages[0].FromUser {
		t.Errorf("messages = %+v, want greeting first", s.Messages)
	}
	if _, loads, _ := rt.Calls(); len(loads) != 1 {
		t.Errorf("loads = %v, want one auto-load", loads)
	}

	if err := sm.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sm.IsActive() {
		t.Fatal("expected session to be inactive after Stop")
	}
	if sm.Orchestrator() != nil {
		t.Error("Orchestrator() should be nil after Stop")
	}
	if sm.Info().SessionID != "" {
		t.Error("Info should be reset after Stop")
	}
}

func TestSessionManager_DoubleStart(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager(t)

	if _, err := sm.Start(context.Background(), "Ages 4-7"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := sm.Start(context.Background(), "Ages 13-16+")
	if !errors.Is(err, app.ErrSessionActive) {
		t.Fatalf("second Start err = %v, want ErrSessionActive", err)
	}
}

func TestSessionManager_StopWithoutStart(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager(t)

	if err := sm.Stop(context.Background()); !errors.Is(err, app.ErrNoSession) {
		t.Fatalf("Stop err = %v, want ErrNoSession", err)
	}
}

func TestSessionManager_StartCancelledContext(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sm.Start(ctx, "Ages 4-7"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start err = %v, want context.Canceled", err)
	}
	if sm.IsActive() {
		t.Fatal("cancelled Start left a session active")
	}
}

func TestSessionManager_RestartUsesNewSession(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager(t)

	first, err := sm.Start(context.Background(), "Ages 4-7")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	firstID := sm.Info().SessionID
	if err := sm.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	second, err := sm.Start(context.Background(), "Unknown group")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second == first {
		t.Error("restart reused the old orchestrator")
	}
	if sm.Info().SessionID == firstID {
		t.Error("restart reused the session id")
	}
	if got := sm.Info().DisplayName; got != chat.DefaultPersona.Name {
		t.Errorf("DisplayName = %q, want default persona", got)
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager(t)

	if _, err := sm.Start(context.Background(), "Ages 4-7"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = sm.IsActive()
		}()
		go func() {
			defer wg.Done()
			_ = sm.Info()
		}()
		go func() {
			defer wg.Done()
			if o := sm.Orchestrator(); o != nil {
				_ = o.Store().Snapshot()
			}
		}()
	}
	wg.Wait()
}
