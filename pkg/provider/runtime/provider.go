// Package runtime defines the Runtime interface for model-serving backends.
//
// A runtime owns the model catalog, model downloads, loading a model into
// memory and streaming generation. The chat orchestrator treats it as an
// opaque collaborator: everything it needs is expressed by the four methods
// below.
//
// Streams are push-based. DownloadModel and GenerateStream return receive-only
// channels that the implementation closes when the stream ends. A failing
// stream delivers exactly one final item with Err set and then closes. Items
// are never reordered or dropped.
//
// Implementations must be safe for concurrent use.
package runtime

import (
	"context"
	"errors"
)

// ErrNoModelLoaded is returned by GenerateStream when no model has been
// loaded yet.
var ErrNoModelLoaded = errors.New("runtime: no model loaded")

// ErrUnknownModel is returned by DownloadModel or LoadModel for an id the
// backend does not know about.
var ErrUnknownModel = errors.New("runtime: unknown model")

// Category classifies a model by what it can be used for.
type Category string

const (
	// CategoryLanguage is a text generation model usable for chat.
	CategoryLanguage Category = "language"

	// CategorySpeechRecognition is a speech-to-text model.
	CategorySpeechRecognition Category = "speech-recognition"

	// CategorySpeechSynthesis is a text-to-speech model.
	CategorySpeechSynthesis Category = "speech-synthesis"

	// CategoryEmbedding is a text embedding model.
	CategoryEmbedding Category = "embedding"

	// CategoryOther covers anything the backend could not classify.
	CategoryOther Category = "other"
)

// IsLanguage reports whether models of this category can answer chat
// prompts.
func (c Category) IsLanguage() bool {
	return c == CategoryLanguage
}

// ModelDescriptor is one catalog entry.
type ModelDescriptor struct {
	// ID is the backend-specific identifier passed to DownloadModel and LoadModel.
	ID string

	// Name is a human-readable label.
	Name string

	// Category classifies the model.
	Category Category

	// IsDownloaded reports whether the model is available locally.
	IsDownloaded bool

	// Size is the model size in bytes, or zero if unknown.
	Size int64
}

// Progress is one item of a download stream.
type Progress struct {
	// Fraction is the completed share of the download in [0, 1].
	Fraction float64

	// Err is set only on the final item of a failed download.
	Err error
}

// Token is one item of a generation stream.
type Token struct {
	// Text is the incremental fragment of generated text.
	Text string

	// Err is set only on the final item of a failed generation.
	Err error
}

// Runtime is the abstraction over a model-serving backend.
type Runtime interface {
	// ListModels returns the current catalog in a stable order.
	ListModels(ctx context.Context) ([]ModelDescriptor, error)

	// DownloadModel starts downloading the model and returns its progress
	// stream. Returns an error only if the download cannot be started.
	DownloadModel(ctx context.Context, id string) (<-chan Progress, error)

	// LoadModel makes the model the target of subsequent GenerateStream
	// calls. It blocks until the model is ready or loading failed.
	LoadModel(ctx context.Context, id string) error

	// GenerateStream generates a completion for prompt with the loaded
	// model. Returns an error only if generation cannot be started.
	GenerateStream(ctx context.Context, prompt string) (<-chan Token, error)
}

// Pinger is implemented by runtimes that can cheaply check that their
// backend is reachable. Readiness probes fall back to ListModels otherwise.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Find returns the catalog entry with the given id.
func Find(catalog []ModelDescriptor, id string) (ModelDescriptor, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// ClampFraction bounds f to [0, 1].
func ClampFraction(f float64) float64 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	}
	return f
}
