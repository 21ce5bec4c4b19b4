package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cogniscribe/internal/chat"
)

var (
	// ErrSessionActive is returned by Start while another session runs.
	ErrSessionActive = errors.New("app: a session is already active")

	// ErrNoSession is returned by Stop when no session runs.
	ErrNoSession = errors.New("app: no active session")
)

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// AgeGroup is the age group the session was started with.
	AgeGroup string

	// DisplayName is the persona name shown for assistant messages.
	DisplayName string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager manages the lifecycle of chat sessions. Only one session
// can be active at a time. All exported methods are safe for concurrent use.
type SessionManager struct {
	app *App

	mu     sync.Mutex
	active bool
	info   SessionInfo
	orch   *chat.Orchestrator
	runErr chan error
}

func newSessionManager(a *App) *SessionManager {
	return &SessionManager{app: a}
}

// Start begins a new session for ageGroup: it creates a fresh state store
// and orchestrator, runs the orchestrator's event loop and initialises the
// conversation with the age group's persona. The loop runs until Stop; ctx
// only bounds the start-up.
//
// Returns [ErrSessionActive] if a session is already running.
func (sm *SessionManager) Start(ctx context.Context, ageGroup string) (*chat.Orchestrator, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := sm.app
	sessionID := uuid.NewString()
	log := a.log.With("session_id", sessionID)

	opts := []chat.Option{
		chat.WithPersonas(a.Personas()),
		chat.WithMetrics(a.metrics),
		chat.WithLogger(log),
	}
	if a.loadTimeout > 0 {
		opts = append(opts, chat.WithLoadTimeout(a.loadTimeout))
	}
	store := chat.NewStore()
	orch := chat.New(store, a.providers.Runtime, a.providers.Recognizer, a.providers.Synthesizer, opts...)

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(context.Background()) }()

	if err := orch.Initialize(ageGroup); err != nil {
		_ = orch.Close()
		<-runErr
		return nil, fmt.Errorf("app: initialise session: %w", err)
	}

	sm.active = true
	sm.orch = orch
	sm.runErr = runErr
	sm.info = SessionInfo{
		SessionID:   sessionID,
		AgeGroup:    ageGroup,
		DisplayName: store.Snapshot().DisplayName,
		StartedAt:   time.Now().UTC(),
	}
	a.metrics.ActiveSessions.Add(ctx, 1)

	log.Info("session started",
		"age_group", ageGroup,
		"persona", sm.info.DisplayName,
	)
	return orch, nil
}

// Stop ends the active session. Speech is stopped and background work is
// waited for, bounded by ctx.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return ErrNoSession
	}

	closed := make(chan struct{})
	go func() {
		_ = sm.orch.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-ctx.Done():
		return fmt.Errorf("app: stop session %s: %w", sm.info.SessionID, ctx.Err())
	}
	if err := <-sm.runErr; err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("session loop ended with error", "session_id", sm.info.SessionID, "err", err)
	}

	sm.app.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	sm.app.log.Info("session stopped",
		"session_id", sm.info.SessionID,
		"duration", time.Since(sm.info.StartedAt).Round(time.Second).String(),
	)

	sm.active = false
	sm.orch = nil
	sm.runErr = nil
	sm.info = SessionInfo{}
	return nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session. The zero value is
// returned when no session runs.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Orchestrator returns the active session's orchestrator, or nil.
func (sm *SessionManager) Orchestrator() *chat.Orchestrator {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.orch
}
