// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs) and
// presents a uniform streaming interface. SynthesizeStream accepts a channel of
// text fragments and returns a channel of PCM audio chunks as they become
// available, each annotated with how many source characters it covers. The
// annotation lets a caller report which part of the text is being spoken.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns
	// a channel that emits audio chunks as they are synthesised.
	//
	// The returned channel is closed by the implementation when all text has
	// been synthesised or when ctx is cancelled. A failure during synthesis is
	// reported as a final Chunk with Err set. The caller must drain the channel.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan Chunk, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
