// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify which
// text fragments and VoiceProfile reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: []tts.Chunk{{Audio: []byte{0, 0}, Chars: 5}},
//	}
//	ch, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/cogniscribe/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is emitted on the channel returned by SynthesizeStream
	// after the text channel has been drained. When nil, one chunk per text
	// fragment is emitted with Chars set to the fragment's rune count.
	SynthesizeChunks []tts.Chunk

	// SynthesizeErr, if non-nil, is returned as the error from SynthesizeStream.
	SynthesizeErr error

	// Gate, if non-nil, holds every stream open until it is closed.
	Gate chan struct{}

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// Texts records the text fragments received, one joined string per stream.
	Texts []string

	// ListVoicesCalls is the number of ListVoices calls.
	ListVoicesCalls int
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that emits the configured chunks then closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan tts.Chunk, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := append([]tts.Chunk(nil), p.SynthesizeChunks...)
	scripted := p.SynthesizeChunks != nil
	gate := p.Gate
	idx := len(p.Texts)
	p.Texts = append(p.Texts, "")
	p.mu.Unlock()

	ch := make(chan tts.Chunk)
	go func() {
		defer close(ch)

		var sb strings.Builder
		for frag := range text {
			sb.WriteString(frag)
			if !scripted {
				chunks = append(chunks, tts.Chunk{Audio: make([]byte, 2*len(frag)), Chars: len([]rune(frag))})
			}
		}
		p.mu.Lock()
		p.Texts[idx] = sb.String()
		p.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// CallCount returns the number of SynthesizeStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// ReceivedTexts returns a copy of Texts. Thread-safe.
func (p *Provider) ReceivedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Texts...)
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
