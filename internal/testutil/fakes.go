// Package testutil holds fakes shared by pipeline stage tests.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ProductScout/internal/domain"
	"ProductScout/internal/infrastructure/llm"
	"ProductScout/internal/source"
)

// ErrLLMDown is returned by FailingLLM.
var ErrLLMDown = errors.New("llm unavailable")

// FakeLLM answers prompts through Respond and decodes the text like the real client.
type FakeLLM struct {
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// GenerateJSON records the prompt and decodes the canned reply into out.
func (f *FakeLLM) GenerateJSON(_ context.Context, prompt string, out any) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.Respond == nil {
		return ErrLLMDown
	}
	content, err := f.Respond(prompt)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(content, out)
}

// Prompts returns a copy of every prompt seen so far.
func (f *FakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Calls counts the prompts that contain marker.
func (f *FakeLLM) Calls(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

// FailingLLM rejects every call.
func FailingLLM() *FakeLLM {
	return &FakeLLM{Respond: func(string) (string, error) { return "", ErrLLMDown }}
}

// FakeAdapter is a source.Adapter returning fixed mentions or a fixed error.
type FakeAdapter struct {
	AdapterName string
	Mentions    []domain.Mention
	Err         error

	mu    sync.Mutex
	terms [][]string
}

var _ source.Adapter = (*FakeAdapter)(nil)

// Name implements source.Adapter.
func (a *FakeAdapter) Name() string { return a.AdapterName }

// Retrieve implements source.Adapter.
func (a *FakeAdapter) Retrieve(_ context.Context, terms []string, _ source.Options) ([]domain.Mention, error) {
	a.mu.Lock()
	a.terms = append(a.terms, append([]string(nil), terms...))
	a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	return append([]domain.Mention(nil), a.Mentions...), nil
}

// Terms returns the term lists passed to each Retrieve call.
func (a *FakeAdapter) Terms() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]string(nil), a.terms...)
}
