// Package audio moves PCM audio between the local machine and the speech
// providers.
//
// A [Source] captures microphone input as a stream of [AudioFrame] values and
// a [Sink] plays frames back. The command-backed implementations in this
// package shell out to a recorder and a player (arecord/aplay, sox, ffmpeg)
// that read or write raw PCM on stdio, which keeps the module free of cgo.
package audio

import "context"

// Source captures audio.
type Source interface {
	// Capture starts recording and returns a channel of frames in Format().
	// The channel is closed when ctx is cancelled or the device stops.
	Capture(ctx context.Context) (<-chan AudioFrame, error)

	// Format reports the format of captured frames.
	Format() Format
}

// Sink plays audio.
type Sink interface {
	// Play writes frames to the output device until frames is closed or ctx
	// is cancelled. It blocks until playback has finished. Cancelling ctx
	// stops playback immediately and returns ctx.Err().
	Play(ctx context.Context, frames <-chan AudioFrame) error

	// Format reports the format the sink expects.
	Format() Format
}
