// Package synthesizer implements speech.Synthesizer on top of a streaming TTS
// provider and an audio sink.
//
// Text is split into sentence fragments that concatenate back to the input,
// so the character counts reported by the provider's alignment map directly
// onto offsets in the spoken text.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/cogniscribe/pkg/audio"
	"github.com/MrWong99/cogniscribe/pkg/provider/speech"
	"github.com/MrWong99/cogniscribe/pkg/provider/tts"
)

// Config tunes a Synthesizer.
type Config struct {
	// Voice selects the provider voice.
	Voice tts.VoiceProfile

	// Format is the PCM format the provider emits. Default 16 kHz mono.
	Format audio.Format
}

// Synthesizer implements speech.Synthesizer. At most one utterance is in
// flight; Speak and Stop cut off the previous one and silence its events.
type Synthesizer struct {
	tts  tts.Provider
	sink audio.Sink
	cfg  Config
	hub  speech.Broadcaster[speech.SynthesizerEvent]

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

// New returns a Synthesizer that voices text with p and plays it on sink.
func New(p tts.Provider, sink audio.Sink, cfg Config) *Synthesizer {
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = 16000
	}
	if cfg.Format.Channels <= 0 {
		cfg.Format.Channels = 1
	}
	return &Synthesizer{tts: p, sink: sink, cfg: cfg}
}

// Subscribe implements speech.Synthesizer.
func (s *Synthesizer) Subscribe() (<-chan speech.SynthesizerEvent, func()) {
	return s.hub.Subscribe()
}

// Speak implements speech.Synthesizer. It returns once the utterance has
// been scheduled; synthesis and playback run in the background.
func (s *Synthesizer) Speak(ctx context.Context, text, utteranceID string) error {
	if text == "" {
		return errors.New("synthesizer: empty text")
	}

	uctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(uctx, gen, text, utteranceID)
	}()
	return nil
}

// Stop implements speech.Synthesizer.
func (s *Synthesizer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	return nil
}

// Close stops playback, waits for background work and closes subscriptions.
func (s *Synthesizer) Close() error {
	_ = s.Stop()
	s.wg.Wait()
	s.hub.Close()
	return nil
}

// publish emits e only while gen is still the current utterance. Terminal
// events may wait for a slow subscriber, so they are sent after the lock is
// released; Stop and Speak must not stall behind them.
func (s *Synthesizer) publish(gen uint64, e speech.SynthesizerEvent) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	if e.Terminal() {
		s.mu.Unlock()
		s.hub.Publish(e)
		return true
	}
	defer s.mu.Unlock()
	s.hub.Publish(e)
	return true
}

func (s *Synthesizer) run(ctx context.Context, gen uint64, text, id string) {
	fragments := SplitFragments(text)
	textCh := make(chan string, len(fragments))
	for _, f := range fragments {
		textCh <- f
	}
	close(textCh)

	chunks, err := s.tts.SynthesizeStream(ctx, textCh, s.cfg.Voice)
	if err != nil {
		s.publish(gen, speech.SynthesizerEvent{
			Kind:        speech.SynthesizerError,
			UtteranceID: id,
			Err:         fmt.Errorf("synthesizer: start: %w", err),
		})
		return
	}
	if !s.publish(gen, speech.SynthesizerEvent{Kind: speech.SynthesizerStarted, UtteranceID: id}) {
		audio.Drain(chunks)
		return
	}

	frames := make(chan audio.AudioFrame, 32)
	played := make(chan error, 1)
	go func() { played <- s.sink.Play(ctx, frames) }()

	total := len([]rune(text))
	var (
		spoken    int
		streamErr error
	)
	for c := range chunks {
		if c.Err != nil {
			streamErr = c.Err
			continue
		}
		if c.Chars > 0 {
			start := spoken
			spoken = min(spoken+c.Chars, total)
			s.publish(gen, speech.SynthesizerEvent{
				Kind:        speech.SynthesizerRange,
				UtteranceID: id,
				Start:       start,
				End:         spoken,
			})
		}
		if len(c.Audio) == 0 {
			continue
		}
		select {
		case frames <- audio.AudioFrame{Data: c.Audio, SampleRate: s.cfg.Format.SampleRate, Channels: s.cfg.Format.Channels}:
		case <-ctx.Done():
		}
	}
	close(frames)
	playErr := <-played

	if ctx.Err() != nil {
		// Stopped or superseded: stay silent.
		return
	}
	switch {
	case streamErr != nil:
		s.publish(gen, speech.SynthesizerEvent{Kind: speech.SynthesizerError, UtteranceID: id, Err: streamErr})
	case playErr != nil:
		s.publish(gen, speech.SynthesizerEvent{Kind: speech.SynthesizerError, UtteranceID: id, Err: fmt.Errorf("synthesizer: playback: %w", playErr)})
	default:
		if !s.publish(gen, speech.SynthesizerEvent{Kind: speech.SynthesizerDone, UtteranceID: id}) {
			slog.Debug("synthesizer: utterance superseded before done", "utterance", id)
		}
	}
}
