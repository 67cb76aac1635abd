package resilience

import (
	"context"

	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/types"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the capabilities of the first entry (the primary).
// This does not participate in failover because capabilities are static metadata.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.Primary().Capabilities()
}
