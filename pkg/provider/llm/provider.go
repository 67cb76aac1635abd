// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o,
// Anthropic Claude, or a local Ollama instance) and exposes the single
// request/response call that interview evaluation needs, without coupling the
// caller to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/intervox/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction placed before Messages.
	SystemPrompt string

	// JSON asks the model for a single JSON object. Backends without a native
	// JSON mode ignore it; the prompt must still request JSON explicitly.
	JSON bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	Capabilities() types.ModelCapabilities
}
