// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the CompletionRequests an evaluator
// sends and to feed controlled responses without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"rating": 8}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// A nil CompleteResponse with a nil CompleteErr returns (nil, nil).
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns CompleteResponse, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	return p.CompleteResponse, p.CompleteErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded Complete calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}
