// Package recognizer implements speech.Recognizer on top of a streaming STT
// provider and an audio source.
//
// One Start opens one STT session. Captured frames are converted to the
// session format and streamed to the provider. Final transcripts are joined
// until the provider marks the end of the utterance or the stream ends, then
// a single RecognizerFinal (or RecognizerError) closes the session.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/cogniscribe/pkg/audio"
	"github.com/MrWong99/cogniscribe/pkg/provider/speech"
	"github.com/MrWong99/cogniscribe/pkg/provider/stt"
)

// ErrBusy is returned by Start while a session is active.
var ErrBusy = errors.New("recognizer: session already active")

// Config tunes a Recognizer. Zero values select defaults.
type Config struct {
	// Language is the BCP-47 language code passed to the STT provider.
	Language string

	// SampleRate is the rate audio is sent to the STT provider at.
	// Default 16000.
	SampleRate int

	// ListenTimeout ends the session with ErrorSpeechTimeout when no speech
	// is heard within this long after Start. Default 8s. Negative disables.
	ListenTimeout time.Duration

	// Keywords are boosted by providers that support it.
	Keywords []stt.KeywordBoost
}

const (
	defaultSampleRate    = 16000
	defaultListenTimeout = 8 * time.Second
)

// Recognizer implements speech.Recognizer.
type Recognizer struct {
	stt stt.Provider
	src audio.Source
	cfg Config
	hub speech.Broadcaster[speech.RecognizerEvent]

	mu     sync.Mutex
	active *session
}

var _ speech.Recognizer = (*Recognizer)(nil)

// New returns a Recognizer that captures from src and transcribes with p.
func New(p stt.Provider, src audio.Source, cfg Config) *Recognizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.ListenTimeout == 0 {
		cfg.ListenTimeout = defaultListenTimeout
	}
	return &Recognizer{stt: p, src: src, cfg: cfg}
}

// SetKeywords replaces the boosted keywords used by subsequent sessions.
func (r *Recognizer) SetKeywords(kw []stt.KeywordBoost) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Keywords = append([]stt.KeywordBoost(nil), kw...)
}

// Subscribe implements speech.Recognizer.
func (r *Recognizer) Subscribe() (<-chan speech.RecognizerEvent, func()) {
	return r.hub.Subscribe()
}

// Close ends any active session and closes all subscriptions.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s != nil {
		s.stop()
		<-s.done
	}
	r.hub.Close()
	return nil
}

// session is one Start..Final lifecycle.
type session struct {
	stopCapture context.CancelFunc
	stopStream  context.CancelFunc
	done        chan struct{}

	mu      sync.Mutex // guards handle and stopped
	handle  stt.SessionHandle
	stopped bool
}

// Start implements speech.Recognizer.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		r.hub.Publish(speech.RecognizerEvent{Kind: speech.RecognizerError, Code: speech.ErrorBusy})
		return ErrBusy
	}
	cfg := r.cfg
	captureCtx, stopCapture := context.WithCancel(ctx)
	streamCtx, stopStream := context.WithCancel(ctx)
	s := &session{stopCapture: stopCapture, stopStream: stopStream, done: make(chan struct{})}
	r.active = s
	r.mu.Unlock()

	fail := func(code speech.ErrorCode, err error) error {
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
		close(s.done)
		r.hub.Publish(speech.RecognizerEvent{Kind: speech.RecognizerError, Code: code})
		return err
	}

	frames, err := r.src.Capture(captureCtx)
	if err != nil {
		stopCapture()
		stopStream()
		return fail(speech.ErrorAudio, fmt.Errorf("recognizer: capture: %w", err))
	}

	handle, err := r.stt.StartStream(streamCtx, stt.StreamConfig{
		SampleRate: cfg.SampleRate,
		Channels:   1,
		Language:   cfg.Language,
		Keywords:   cfg.Keywords,
	})

	s.mu.Lock()
	stopped := s.stopped
	if err == nil {
		s.handle = handle
	}
	s.mu.Unlock()

	if stopped {
		// Stop arrived during the handshake. Nothing was heard, so the
		// session ends the same way an empty stopped session does.
		stopCapture()
		stopStream()
		go audio.Drain(frames)
		if handle != nil {
			if err := handle.Close(); err != nil {
				slog.Debug("recognizer: close stream", "err", err)
			}
		}
		return fail(speech.ErrorNoMatch, nil)
	}
	if err != nil {
		stopCapture()
		stopStream()
		go audio.Drain(frames)
		return fail(speech.ErrorNetwork, fmt.Errorf("recognizer: start stream: %w", err))
	}

	r.hub.Publish(speech.RecognizerEvent{Kind: speech.RecognizerReady})

	target := audio.Format{SampleRate: cfg.SampleRate, Channels: 1}
	go r.pump(captureCtx, s, audio.ConvertStream(captureCtx, frames, target))
	go r.collect(s, cfg.ListenTimeout)
	return nil
}

// Stop implements speech.Recognizer. Capture ends immediately; the provider
// is asked to flush so that speech already heard is still delivered.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	s.stop()
	return nil
}

// stop ends capture and closes the STT stream. Before the stream is open it
// only marks the session and aborts the handshake; Start finishes the rest.
func (s *session) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	h := s.handle
	s.mu.Unlock()

	s.stopCapture()
	if h == nil {
		s.stopStream()
		return
	}
	go func() {
		if err := h.Close(); err != nil {
			slog.Debug("recognizer: close stream", "err", err)
		}
	}()
}

// pump forwards converted frames to the STT session. When capture ends on
// its own (device closed) the session is closed so that results flush.
func (r *Recognizer) pump(ctx context.Context, s *session, frames <-chan audio.AudioFrame) {
	for f := range frames {
		if err := s.handle.SendAudio(f.Data); err != nil {
			slog.Debug("recognizer: send audio", "err", err)
			break
		}
	}
	if ctx.Err() == nil {
		s.stop()
	}
	audio.Drain(frames)
}

// collect turns transcripts into recognizer events. The session is released
// before its single terminal event is published, so a subscriber may Start
// again as soon as it sees Final or Error.
func (r *Recognizer) collect(s *session, timeout time.Duration) {
	last := r.transcribe(s, timeout)

	s.stop()
	s.stopCapture()
	s.stopStream()
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()
	close(s.done)

	r.hub.Publish(last)
}

// transcribe publishes SpeechBegin, Partial and SpeechEnd events and returns
// the terminal event.
func (r *Recognizer) transcribe(s *session, timeout time.Duration) speech.RecognizerEvent {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var (
		committed []string
		began     bool
	)
	partials, finals := s.handle.Partials(), s.handle.Finals()

	begin := func() {
		if !began {
			began = true
			timer = nil
			r.hub.Publish(speech.RecognizerEvent{Kind: speech.RecognizerSpeechBegin})
		}
	}

loop:
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if strings.TrimSpace(t.Text) == "" {
				continue
			}
			begin()
			r.hub.Publish(speech.RecognizerEvent{
				Kind: speech.RecognizerPartial,
				Text: join(append(committed[:len(committed):len(committed)], t.Text)),
			})
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if text := strings.TrimSpace(t.Text); text != "" {
				begin()
				committed = append(committed, text)
			}
			if t.EndOfUtterance && len(committed) > 0 {
				break loop
			}
		case <-timer:
			return speech.RecognizerEvent{Kind: speech.RecognizerError, Code: speech.ErrorSpeechTimeout}
		}
	}

	if began {
		r.hub.Publish(speech.RecognizerEvent{Kind: speech.RecognizerSpeechEnd})
	}
	if len(committed) > 0 {
		return speech.RecognizerEvent{Kind: speech.RecognizerFinal, Text: join(committed)}
	}
	if ef, ok := s.handle.(interface{ Err() error }); ok && ef.Err() != nil {
		slog.Warn("recognizer: stream failed", "err", ef.Err())
		return speech.RecognizerEvent{Kind: speech.RecognizerError, Code: speech.ErrorNetwork}
	}
	return speech.RecognizerEvent{Kind: speech.RecognizerError, Code: speech.ErrorNoMatch}
}

func join(parts []string) string {
	return strings.Join(parts, " ")
}
