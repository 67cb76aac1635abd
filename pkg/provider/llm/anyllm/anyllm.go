// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "claude-3-5-sonnet-latest").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// If no API key option is provided, the provider will fall back to the relevant
// environment variable (e.g., OPENAI_API_KEY, ANTHROPIC_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params := p.buildParams(req)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	choice := resp.Choices[0]
	result := &llm.CompletionResponse{
		Content: choice.Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return modelCapabilities(p.model)
}

// buildParams converts our CompletionRequest into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}

	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}

	return params
}

// convertMessage converts our types.Message to anyllm.Message.
func convertMessage(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{
		Role:    m.Role,
		Content: m.Content,
		Name:    m.Name,
	}
}

// modelFamily maps a lower-case model name pattern to its limits. Entries
// are matched in order, so more specific patterns come first.
type modelFamily struct {
	pattern   string
	contains  bool
	context   int
	maxOutput int
	jsonMode  bool
}

var modelFamilies = []modelFamily{
	{pattern: "gpt-4o", context: 128_000, maxOutput: 16_384, jsonMode: true},
	{pattern: "gpt-4-turbo", context: 128_000, maxOutput: 4_096, jsonMode: true},
	{pattern: "gpt-4", context: 8_192, maxOutput: 4_096},
	{pattern: "gpt-3.5-turbo", context: 16_385, maxOutput: 4_096, jsonMode: true},
	{pattern: "o1-mini", context: 128_000, maxOutput: 65_536},
	{pattern: "o1", context: 200_000, maxOutput: 100_000, jsonMode: true},
	{pattern: "o3", context: 200_000, maxOutput: 100_000, jsonMode: true},
	{pattern: "claude-3-opus", contains: true, context: 200_000, maxOutput: 4_096},
	{pattern: "claude", context: 200_000, maxOutput: 8_192},
	{pattern: "gemini-1.5-pro", contains: true, context: 2_097_152, maxOutput: 8_192, jsonMode: true},
	{pattern: "gemini-2.0-flash", contains: true, context: 1_048_576, maxOutput: 8_192, jsonMode: true},
	{pattern: "gemini-1.5-flash", contains: true, context: 1_048_576, maxOutput: 8_192, jsonMode: true},
	{pattern: "gemini", context: 128_000, maxOutput: 8_192, jsonMode: true},
}

// modelCapabilities returns ModelCapabilities based on known model names.
// Unknown models receive conservative defaults without JSON mode.
func modelCapabilities(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, f := range modelFamilies {
		matched := strings.HasPrefix(lower, f.pattern)
		if f.contains {
			matched = strings.Contains(lower, f.pattern)
		}
		if matched {
			return types.ModelCapabilities{
				ContextWindow:    f.context,
				MaxOutputTokens:  f.maxOutput,
				SupportsJSONMode: f.jsonMode,
			}
		}
	}
	return types.ModelCapabilities{
		ContextWindow:   128_000,
		MaxOutputTokens: 4_096,
	}
}
