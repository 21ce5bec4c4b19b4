// Package mock provides scripted test doubles for the speech.Recognizer and
// speech.Synthesizer interfaces.
//
// Both mocks record every call and let the test inject events with Emit, so
// that a test can replay any interleaving of lifecycle callbacks.
//
// Example:
//
//	syn := &mock.Synthesizer{}
//	orch := chat.New(store, rt, rec, syn)
//	syn.Emit(speech.SynthesizerEvent{Kind: speech.SynthesizerStarted, UtteranceID: id})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cogniscribe/pkg/provider/speech"
)

// Recognizer is a mock implementation of speech.Recognizer.
type Recognizer struct {
	mu  sync.Mutex
	hub speech.Broadcaster[speech.RecognizerEvent]

	// OnStart, if non-empty, is published in order on every successful
	// Start call.
	OnStart []speech.RecognizerEvent

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCalls is the number of Start calls.
	StartCalls int

	// StopCalls is the number of Stop calls.
	StopCalls int
}

// Compile-time interface assertion.
var _ speech.Recognizer = (*Recognizer)(nil)

// Start records the call, then publishes OnStart unless StartErr is set.
func (r *Recognizer) Start(_ context.Context) error {
	r.mu.Lock()
	r.StartCalls++
	err := r.StartErr
	events := append([]speech.RecognizerEvent(nil), r.OnStart...)
	r.mu.Unlock()

	if err != nil {
		return err
	}
	for _, e := range events {
		r.hub.Publish(e)
	}
	return nil
}

// Stop records the call.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopCalls++
	return nil
}

// Subscribe implements speech.Recognizer.
func (r *Recognizer) Subscribe() (<-chan speech.RecognizerEvent, func()) {
	return r.hub.Subscribe()
}

// Emit publishes e to all subscribers.
func (r *Recognizer) Emit(e speech.RecognizerEvent) {
	r.hub.Publish(e)
}

// Counts returns StartCalls and StopCalls. Thread-safe.
func (r *Recognizer) Counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.StartCalls, r.StopCalls
}

// SpeakCall records a single invocation of Synthesizer.Speak.
type SpeakCall struct {
	Text        string
	UtteranceID string
}

// Synthesizer is a mock implementation of speech.Synthesizer.
type Synthesizer struct {
	mu  sync.Mutex
	hub speech.Broadcaster[speech.SynthesizerEvent]

	// AutoStart publishes SynthesizerStarted for every successful Speak.
	AutoStart bool

	// SpeakErr, if non-nil, is returned by Speak.
	SpeakErr error

	// SpeakCalls records every Speak call in order.
	SpeakCalls []SpeakCall

	// StopCalls is the number of Stop calls.
	StopCalls int
}

// Compile-time interface assertion.
var _ speech.Synthesizer = (*Synthesizer)(nil)

// Speak records the call and optionally publishes SynthesizerStarted.
func (s *Synthesizer) Speak(_ context.Context, text, utteranceID string) error {
	s.mu.Lock()
	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{Text: text, UtteranceID: utteranceID})
	err := s.SpeakErr
	auto := s.AutoStart
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if auto {
		s.hub.Publish(speech.SynthesizerEvent{Kind: speech.SynthesizerStarted, UtteranceID: utteranceID})
	}
	return nil
}

// Stop records the call.
func (s *Synthesizer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	return nil
}

// Subscribe implements speech.Synthesizer.
func (s *Synthesizer) Subscribe() (<-chan speech.SynthesizerEvent, func()) {
	return s.hub.Subscribe()
}

// Emit publishes e to all subscribers.
func (s *Synthesizer) Emit(e speech.SynthesizerEvent) {
	s.hub.Publish(e)
}

// Calls returns a copy of SpeakCalls and the Stop count. Thread-safe.
func (s *Synthesizer) Calls() ([]SpeakCall, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpeakCall(nil), s.SpeakCalls...), s.StopCalls
}

// LastSpeak returns the most recent Speak call. ok is false if Speak was
// never called. Thread-safe.
func (s *Synthesizer) LastSpeak() (SpeakCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.SpeakCalls) == 0 {
		return SpeakCall{}, false
	}
	return s.SpeakCalls[len(s.SpeakCalls)-1], true
}
