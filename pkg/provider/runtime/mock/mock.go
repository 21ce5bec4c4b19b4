// Package mock provides a test double for the runtime.Runtime interface.
//
// Set the exported fields to control what the mock returns; inspect the
// *Calls fields afterwards. A successful download marks the model as
// downloaded in Models, mirroring what a real backend reports on the next
// ListModels call.
//
// Example:
//
//	rt := &mock.Runtime{
//	    Models: []runtime.ModelDescriptor{{ID: "m1", Category: runtime.CategoryLanguage}},
//	    Tokens: []string{"Hel", "lo"},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
)

// Runtime is a mock implementation of runtime.Runtime. It is safe for
// concurrent use.
type Runtime struct {
	mu sync.Mutex

	// Models is the catalog returned by ListModels.
	Models []runtime.ModelDescriptor

	// ListErr, if non-nil, is returned by ListModels.
	ListErr error

	// DownloadFractions are emitted in order by every DownloadModel stream.
	DownloadFractions []float64

	// DownloadErr, if non-nil, is returned by DownloadModel.
	DownloadErr error

	// DownloadStreamErr, if non-nil, is delivered as the final item of the
	// download stream instead of marking the model downloaded.
	DownloadStreamErr error

	// LoadErr, if non-nil, is returned by LoadModel.
	LoadErr error

	// Tokens are emitted in order by every GenerateStream stream.
	Tokens []string

	// GenerateErr, if non-nil, is returned by GenerateStream.
	GenerateErr error

	// GenerateStreamErr, if non-nil, is delivered as the final item of the
	// generation stream.
	GenerateStreamErr error

	// Gate, if non-nil, holds every stream before its first item until the
	// channel is closed.
	Gate chan struct{}

	// --- Call records ---

	// ListCalls is the number of ListModels calls.
	ListCalls int

	// DownloadCalls records the ids passed to DownloadModel.
	DownloadCalls []string

	// LoadCalls records the ids passed to LoadModel.
	LoadCalls []string

	// GenerateCalls records the prompts passed to GenerateStream.
	GenerateCalls []string
}

// Compile-time interface assertion.
var _ runtime.Runtime = (*Runtime)(nil)

// ListModels returns a copy of Models or ListErr.
func (r *Runtime) ListModels(_ context.Context) ([]runtime.ModelDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListCalls++
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	out := make([]runtime.ModelDescriptor, len(r.Models))
	copy(out, r.Models)
	return out, nil
}

// DownloadModel records the call and streams DownloadFractions.
func (r *Runtime) DownloadModel(ctx context.Context, id string) (<-chan runtime.Progress, error) {
	r.mu.Lock()
	r.DownloadCalls = append(r.DownloadCalls, id)
	if r.DownloadErr != nil {
		err := r.DownloadErr
		r.mu.Unlock()
		return nil, err
	}
	fractions := append([]float64(nil), r.DownloadFractions...)
	streamErr := r.DownloadStreamErr
	gate := r.Gate
	r.mu.Unlock()

	ch := make(chan runtime.Progress, len(fractions)+1)
	go func() {
		defer close(ch)
		if !wait(ctx, gate) {
			return
		}
		for _, f := range fractions {
			select {
			case ch <- runtime.Progress{Fraction: f}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			ch <- runtime.Progress{Err: streamErr}
			return
		}
		r.markDownloaded(id)
	}()
	return ch, nil
}

// LoadModel records the call and returns LoadErr.
func (r *Runtime) LoadModel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LoadCalls = append(r.LoadCalls, id)
	return r.LoadErr
}

// GenerateStream records the call and streams Tokens.
func (r *Runtime) GenerateStream(ctx context.Context, prompt string) (<-chan runtime.Token, error) {
	r.mu.Lock()
	r.GenerateCalls = append(r.GenerateCalls, prompt)
	if r.GenerateErr != nil {
		err := r.GenerateErr
		r.mu.Unlock()
		return nil, err
	}
	tokens := append([]string(nil), r.Tokens...)
	streamErr := r.GenerateStreamErr
	gate := r.Gate
	r.mu.Unlock()

	ch := make(chan runtime.Token, len(tokens)+1)
	go func() {
		defer close(ch)
		if !wait(ctx, gate) {
			return
		}
		for _, tok := range tokens {
			select {
			case ch <- runtime.Token{Text: tok}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			ch <- runtime.Token{Err: streamErr}
		}
	}()
	return ch, nil
}

// Calls returns copies of the download, load and generate call records.
// Thread-safe.
func (r *Runtime) Calls() (downloads, loads, prompts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.DownloadCalls...),
		append([]string(nil), r.LoadCalls...),
		append([]string(nil), r.GenerateCalls...)
}

// SetTokens replaces Tokens. Thread-safe.
func (r *Runtime) SetTokens(tokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tokens = tokens
}

func (r *Runtime) markDownloaded(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Models {
		if r.Models[i].ID == id {
			r.Models[i].IsDownloaded = true
		}
	}
}

func wait(ctx context.Context, gate chan struct{}) bool {
	if gate == nil {
		return true
	}
	select {
	case <-gate:
		return true
	case <-ctx.Done():
		return false
	}
}
