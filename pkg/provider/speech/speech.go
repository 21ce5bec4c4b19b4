// Package speech defines the Recognizer and Synthesizer capability interfaces
// consumed by the chat orchestrator.
//
// Both capabilities are process-wide resources with a single logical owner.
// Their lifecycle callbacks are modelled as a fixed set of event variants
// delivered over a subscription channel: the owner subscribes once at
// startup and calls the returned cancel function at teardown.
//
// Event delivery never blocks the producer indefinitely. Each subscriber has
// a bounded buffer; see [Broadcaster] for the overflow policy.
package speech

import "context"

// RecognizerEventKind enumerates recognizer lifecycle events.
type RecognizerEventKind int

const (
	// RecognizerReady is emitted once capture has started and the
	// recognizer is waiting for speech.
	RecognizerReady RecognizerEventKind = iota

	// RecognizerSpeechBegin is emitted when the user starts speaking.
	RecognizerSpeechBegin

	// RecognizerSpeechEnd is emitted when the user stops speaking.
	RecognizerSpeechEnd

	// RecognizerPartial carries an interim hypothesis in Text.
	RecognizerPartial

	// RecognizerFinal carries the committed result in Text. It ends the
	// recognition session.
	RecognizerFinal

	// RecognizerError carries a failure Code. It ends the recognition
	// session.
	RecognizerError
)

// String returns the event kind name.
func (k RecognizerEventKind) String() string {
	switch k {
	case RecognizerReady:
		return "ready"
	case RecognizerSpeechBegin:
		return "speech-begin"
	case RecognizerSpeechEnd:
		return "speech-end"
	case RecognizerPartial:
		return "partial"
	case RecognizerFinal:
		return "final"
	case RecognizerError:
		return "error"
	default:
		return "unknown"
	}
}

// RecognizerEvent is one recognizer lifecycle event.
type RecognizerEvent struct {
	Kind RecognizerEventKind

	// Text is set for RecognizerPartial and RecognizerFinal.
	Text string

	// Code is set for RecognizerError.
	Code ErrorCode
}

// Terminal reports whether e ends the recognition session.
func (e RecognizerEvent) Terminal() bool {
	return e.Kind == RecognizerFinal || e.Kind == RecognizerError
}

// ErrorCode classifies recognizer failures.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorAudio
	ErrorClient
	ErrorPermissions
	ErrorNetwork
	ErrorNetworkTimeout
	ErrorNoMatch
	ErrorBusy
	ErrorServer
	ErrorSpeechTimeout
)

// String returns the human-readable message shown to the user.
func (c ErrorCode) String() string {
	switch c {
	case ErrorAudio:
		return "Audio recording error"
	case ErrorClient:
		return "Client error"
	case ErrorPermissions:
		return "Insufficient permissions"
	case ErrorNetwork:
		return "Network error"
	case ErrorNetworkTimeout:
		return "Network timeout"
	case ErrorNoMatch:
		return "No speech match"
	case ErrorBusy:
		return "Recognition service busy"
	case ErrorServer:
		return "Server error"
	case ErrorSpeechTimeout:
		return "No speech input"
	default:
		return "Unknown error"
	}
}

// Recognizer turns spoken input into text. One Start begins one recognition
// session that ends with exactly one RecognizerFinal or RecognizerError
// event, unless Stop is called first.
type Recognizer interface {
	// Start begins capturing and recognising speech. Starting while a
	// session is active emits RecognizerError with ErrorBusy and returns an
	// error.
	Start(ctx context.Context) error

	// Stop ends capture immediately. Results already buffered by the
	// backend may still be delivered. Safe to call when idle.
	Stop() error

	// Subscribe returns a channel of events and a function that cancels the
	// subscription and closes the channel.
	Subscribe() (<-chan RecognizerEvent, func())
}

// SynthesizerEventKind enumerates synthesizer lifecycle events.
type SynthesizerEventKind int

const (
	// SynthesizerStarted is emitted when audio for the utterance begins.
	SynthesizerStarted SynthesizerEventKind = iota

	// SynthesizerRange reports the character range [Start, End) of the
	// utterance text currently being spoken.
	SynthesizerRange

	// SynthesizerDone is emitted when the utterance finished naturally.
	SynthesizerDone

	// SynthesizerError is emitted when the utterance failed.
	SynthesizerError
)

// String returns the event kind name.
func (k SynthesizerEventKind) String() string {
	switch k {
	case SynthesizerStarted:
		return "started"
	case SynthesizerRange:
		return "range"
	case SynthesizerDone:
		return "done"
	case SynthesizerError:
		return "error"
	default:
		return "unknown"
	}
}

// SynthesizerEvent is one synthesizer lifecycle event for the utterance
// identified by UtteranceID.
type SynthesizerEvent struct {
	Kind        SynthesizerEventKind
	UtteranceID string

	// Start and End are character offsets into the text passed to Speak.
	// Set for SynthesizerRange.
	Start, End int

	// Err is set for SynthesizerError.
	Err error
}

// Terminal reports whether e ends its utterance.
func (e SynthesizerEvent) Terminal() bool {
	return e.Kind == SynthesizerDone || e.Kind == SynthesizerError
}

// Synthesizer speaks text aloud. At most one utterance plays at a time.
type Synthesizer interface {
	// Speak flushes any utterance in progress and starts speaking text.
	// Events for the new utterance carry utteranceID. A flushed utterance
	// emits no further events.
	Speak(ctx context.Context, text, utteranceID string) error

	// Stop halts playback immediately. The stopped utterance emits no
	// further events. Idempotent.
	Stop() error

	// Subscribe returns a channel of events and a function that cancels the
	// subscription and closes the channel.
	Subscribe() (<-chan SynthesizerEvent, func())
}
