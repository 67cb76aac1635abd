package elevenlabs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey, gotAccept string
	var gotBody synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	p, err := New("secret", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(t.Context(), "Hello there", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != "mp3-bytes" {
		t.Errorf("clip data = %q", clip.Data)
	}
	if clip.Format != "audio/mpeg" {
		t.Errorf("clip format = %q", clip.Format)
	}
	if gotPath != "/v1/text-to-speech/"+DefaultVoiceID {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
	if gotAccept != "audio/mpeg" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotBody.Text != "Hello there" || gotBody.ModelID != defaultModel {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.5 || !gotBody.VoiceSettings.UseSpeakerBoost {
		t.Errorf("voice settings = %+v", gotBody.VoiceSettings)
	}
}

func TestSynthesize_VoiceOverride(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(t.Context(), "hi", tts.VoiceProfile{ID: "abc"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gotPath != "/v1/text-to-speech/abc" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"bad key"}`},
		{name: "empty body", status: http.StatusOK, body: "", wantErr: tts.ErrEmptyAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := New("k", WithBaseURL(srv.URL))
			_, err := p.Synthesize(t.Context(), "hi", tts.VoiceProfile{})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.body != "" && !strings.Contains(err.Error(), tt.body) {
				t.Errorf("err %q does not carry the response body", err)
			}
		})
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p, _ := New("k")
	if _, err := p.Synthesize(t.Context(), "   ", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Rachel","category":"premade","labels":{"accent":"american"}}]}`))
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(t.Context())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("got %d voices, want 1", len(voices))
	}
	v := voices[0]
	if v.ID != "v1" || v.Name != "Rachel" || v.Provider != "elevenlabs" {
		t.Errorf("voice = %+v", v)
	}
	if v.Metadata["category"] != "premade" || v.Metadata["accent"] != "american" {
		t.Errorf("metadata = %v", v.Metadata)
	}
}

func TestListVoices_BadStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	if _, err := p.ListVoices(t.Context()); err == nil {
		t.Fatal("expected error")
	}
}
