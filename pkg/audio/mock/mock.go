// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for use in unit tests.
//
// Both mocks are safe for concurrent use and record their calls.
//
// Typical usage:
//
//	src := &mock.Source{Frames: []audio.AudioFrame{{Data: pcm, SampleRate: 16000, Channels: 1}}, Hold: true}
//	sink := &mock.Sink{}
//	rec := recognizer.New(sttProvider, src)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cogniscribe/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// Frames are delivered in order on every Capture.
	Frames []audio.AudioFrame

	// Hold keeps the capture channel open after Frames until ctx is cancelled.
	Hold bool

	// CaptureErr, if non-nil, is returned by Capture.
	CaptureErr error

	// Fmt is returned by Format. Defaults to 16 kHz mono.
	Fmt audio.Format

	// CaptureCalls is the number of Capture calls.
	CaptureCalls int
}

var _ audio.Source = (*Source)(nil)

// Capture implements [audio.Source].
func (s *Source) Capture(ctx context.Context) (<-chan audio.AudioFrame, error) {
	s.mu.Lock()
	s.CaptureCalls++
	if s.CaptureErr != nil {
		err := s.CaptureErr
		s.mu.Unlock()
		return nil, err
	}
	frames := append([]audio.AudioFrame(nil), s.Frames...)
	hold := s.Hold
	s.mu.Unlock()

	out := make(chan audio.AudioFrame, len(frames))
	go func() {
		defer close(out)
		for _, f := range frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
		if hold {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fmt == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return s.Fmt
}

// Calls returns CaptureCalls. Thread-safe.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CaptureCalls
}

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play after the frames are consumed.
	PlayErr error

	// Gate, if non-nil, delays the end of every Play until it is closed or
	// the context is cancelled.
	Gate chan struct{}

	// Fmt is returned by Format. Defaults to 16 kHz mono.
	Fmt audio.Format

	// Played holds every frame received, across all Play calls.
	Played []audio.AudioFrame

	// PlayCalls is the number of Play calls.
	PlayCalls int
}

var _ audio.Sink = (*Sink)(nil)

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, frames <-chan audio.AudioFrame) error {
	s.mu.Lock()
	s.PlayCalls++
	gate := s.Gate
	s.mu.Unlock()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				if gate != nil {
					select {
					case <-gate:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				s.mu.Lock()
				defer s.mu.Unlock()
				return s.PlayErr
			}
			s.mu.Lock()
			s.Played = append(s.Played, f)
			s.mu.Unlock()
		case <-ctx.Done():
			go audio.Drain(frames)
			return ctx.Err()
		}
	}
}

// Format implements [audio.Sink].
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fmt == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return s.Fmt
}

// Counts returns PlayCalls and the number of frames played. Thread-safe.
func (s *Sink) Counts() (plays, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PlayCalls, len(s.Played)
}
