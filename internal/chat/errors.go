package chat

import (
	"errors"
	"fmt"

	"github.com/MrWong99/cogniscribe/pkg/provider/speech"
)

// Failure taxonomy. None of these is fatal: each is logged, turned into a
// status line and the orchestrator returns to idle.
var (
	ErrCatalogLoad        = errors.New("chat: catalog load failed")
	ErrDownload           = errors.New("chat: download failed")
	ErrModelNotFound      = errors.New("chat: model not found")
	ErrModelNotDownloaded = errors.New("chat: model not downloaded")
	ErrLoad               = errors.New("chat: model load failed")
	ErrGeneration         = errors.New("chat: generation failed")
	ErrSynthesis          = errors.New("chat: speech synthesis failed")

	// ErrNoModelLoaded is returned by SendMessage before any model is active.
	ErrNoModelLoaded = errors.New("chat: no model loaded")

	// ErrGenerationInFlight is returned by SendMessage and Initialize while
	// an answer is still streaming.
	ErrGenerationInFlight = errors.New("chat: generation in flight")

	// ErrDownloadInFlight is returned by DownloadModel while another download
	// is running.
	ErrDownloadInFlight = errors.New("chat: download in flight")

	// ErrUnknownMessage is returned for message ids not in the transcript.
	ErrUnknownMessage = errors.New("chat: unknown message")

	// ErrTextNotFound is returned by PlayFromText when the selection cannot
	// be located in the message.
	ErrTextNotFound = errors.New("chat: text not found in message")

	// ErrClosed is returned by operations on an orchestrator whose loop has
	// stopped.
	ErrClosed = errors.New("chat: orchestrator closed")
)

// RecognitionError wraps a recognizer failure code.
type RecognitionError struct {
	Code speech.ErrorCode
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("chat: speech recognition: %s", e.Code)
}
