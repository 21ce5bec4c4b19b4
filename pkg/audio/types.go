package audio

import (
	"fmt"
	"time"
)

// AudioFrame is one block of interleaved 16-bit little-endian PCM.
type AudioFrame struct {
	Data []byte

	// SampleRate in Hz (e.g. 16000 for recognition, 24000 for playback).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// Timestamp is the frame's offset from the start of its stream.
	Timestamp time.Duration
}

// Duration returns how much audio the frame holds.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes returns the byte size of a frame of length d in this format.
func (f Format) FrameBytes(d time.Duration) int {
	n := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return n * 2 * max(f.Channels, 1)
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}
