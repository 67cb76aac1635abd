package openai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/types"
)

// TestConvertMessage_Roles checks the supported role conversions.
func TestConvertMessage_Roles(t *testing.T) {
	t.Run("system", func(t *testing.T) {
		param, err := convertMessage(types.Message{Role: "system", Content: "You are an interviewer."})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if param.OfSystem == nil {
			t.Fatal("expected OfSystem to be set")
		}
	})
	t.Run("user", func(t *testing.T) {
		param, err := convertMessage(types.Message{Role: "user", Content: "Hello!"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if param.OfUser == nil {
			t.Fatal("expected OfUser to be set")
		}
	})
	t.Run("assistant", func(t *testing.T) {
		param, err := convertMessage(types.Message{Role: "assistant", Content: "Hi there!", Name: "interviewer"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if param.OfAssistant == nil {
			t.Fatal("expected OfAssistant to be set")
		}
	})
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	_, err := convertMessage(types.Message{Role: "tool", Content: "test"})
	if err == nil {
		t.Fatal("expected error for unsupported role, got nil")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model       string
		wantContext int
		wantJSON    bool
	}{
		{model: "gpt-4o-mini", wantContext: 128_000, wantJSON: true},
		{model: "gpt-4o", wantContext: 128_000, wantJSON: true},
		{model: "gpt-3.5-turbo", wantContext: 16_385, wantJSON: true},
		{model: "gpt-4", wantContext: 8_192, wantJSON: false},
		{model: "o3-mini", wantContext: 200_000, wantJSON: true},
		{model: "my-custom-model", wantContext: 128_000, wantJSON: true},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantContext {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantContext)
			}
			if caps.SupportsJSONMode != tt.wantJSON {
				t.Errorf("SupportsJSONMode = %v, want %v", caps.SupportsJSONMode, tt.wantJSON)
			}
			if caps.MaxOutputTokens <= 0 {
				t.Error("expected MaxOutputTokens > 0")
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	); err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}

func TestComplete_RoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"rating\": 7}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(t.Context(), llm.CompletionRequest{
		SystemPrompt: "Evaluate the interview.",
		Messages:     []types.Message{{Role: "user", Content: "transcript"}},
		Temperature:  0.2,
		JSON:         true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"rating": 7}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}

	if got["model"] != "gpt-4o" {
		t.Errorf("model = %v", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2 (system + user)", len(msgs))
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", got["response_format"])
	}
}
