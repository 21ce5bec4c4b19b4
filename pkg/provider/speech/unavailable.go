package speech

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a speech direction is not configured.
var ErrUnavailable = errors.New("speech: not configured")

// UnavailableRecognizer stands in for a recognizer that is not configured.
// Start fails with [ErrUnavailable]; its subscription never delivers events.
type UnavailableRecognizer struct{}

// UnavailableSynthesizer stands in for a synthesizer that is not configured.
// Speak fails with [ErrUnavailable]; its subscription never delivers events.
type UnavailableSynthesizer struct{}

var (
	_ Recognizer  = UnavailableRecognizer{}
	_ Synthesizer = UnavailableSynthesizer{}
)

// Start implements Recognizer.
func (UnavailableRecognizer) Start(context.Context) error { return ErrUnavailable }

// Stop implements Recognizer.
func (UnavailableRecognizer) Stop() error { return nil }

// Subscribe implements Recognizer.
func (UnavailableRecognizer) Subscribe() (<-chan RecognizerEvent, func()) {
	var b Broadcaster[RecognizerEvent]
	return b.Subscribe()
}

// Speak implements Synthesizer.
func (UnavailableSynthesizer) Speak(context.Context, string, string) error { return ErrUnavailable }

// Stop implements Synthesizer.
func (UnavailableSynthesizer) Stop() error { return nil }

// Subscribe implements Synthesizer.
func (UnavailableSynthesizer) Subscribe() (<-chan SynthesizerEvent, func()) {
	var b Broadcaster[SynthesizerEvent]
	return b.Subscribe()
}
