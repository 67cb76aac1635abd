package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/types"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage(t *testing.T) {
	tests := []struct {
		name string
		in   types.Message
	}{
		{name: "system", in: types.Message{Role: "system", Content: "You are an interviewer."}},
		{name: "user", in: types.Message{Role: "user", Content: "Hello!"}},
		{name: "assistant", in: types.Message{Role: "assistant", Content: "Hi there!"}},
		{name: "named", in: types.Message{Role: "user", Content: "Hi", Name: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertMessage(tt.in)
			if got.Role != tt.in.Role {
				t.Errorf("role = %q, want %q", got.Role, tt.in.Role)
			}
			if got.ContentString() != tt.in.Content {
				t.Errorf("content = %q, want %q", got.ContentString(), tt.in.Content)
			}
			if got.Name != tt.in.Name {
				t.Errorf("name = %q, want %q", got.Name, tt.in.Name)
			}
		})
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "claude-3-5-sonnet-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Evaluate the interview.",
		Messages:     []types.Message{{Role: "user", Content: "transcript"}},
		Temperature:  0.3,
		MaxTokens:    1024,
	})

	if params.Model != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 1024 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_ZeroOptionals(t *testing.T) {
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(params.Messages))
	}
	if params.Temperature != nil {
		t.Error("temperature should be unset")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be unset")
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model         string
		wantContext   int
		wantMaxOutput int
		wantJSON      bool
	}{
		{"gpt-4o-mini", 128_000, 16_384, true},
		{"GPT-4o", 128_000, 16_384, true},
		{"gpt-4-turbo", 128_000, 4_096, true},
		{"gpt-4", 8_192, 4_096, false},
		{"gpt-3.5-turbo", 16_385, 4_096, true},
		{"o1-mini", 128_000, 65_536, false},
		{"o1", 200_000, 100_000, true},
		{"claude-3-5-sonnet-latest", 200_000, 8_192, false},
		{"anthropic/claude-3-opus", 200_000, 4_096, false},
		{"models/gemini-1.5-pro", 2_097_152, 8_192, true},
		{"gemini-2.0-flash", 1_048_576, 8_192, true},
		{"gemini-exp", 128_000, 8_192, true},
		{"llama3", 128_000, 4_096, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantContext {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantContext)
			}
			if caps.MaxOutputTokens != tt.wantMaxOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantMaxOutput)
			}
			if caps.SupportsJSONMode != tt.wantJSON {
				t.Errorf("SupportsJSONMode = %v, want %v", caps.SupportsJSONMode, tt.wantJSON)
			}
		})
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty providerName")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		opts     []anyllmlib.Option
	}{
		{"openai", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", "claude-3-5-sonnet-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3", nil},
		{"llamacpp", "llama3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := New(tt.provider, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
			if p.Capabilities() != modelCapabilities(tt.model) {
				t.Error("Capabilities() does not match the model table")
			}
		})
	}
}

// TestNew_OpenAI_MissingAPIKey relies on OPENAI_API_KEY being cleared.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
