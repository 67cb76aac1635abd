package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// ---- test helpers ----

// buildTestWAV constructs a minimal but valid RIFF/WAVE byte slice containing the
// supplied raw PCM samples. It writes a standard 44-byte header (RIFF + fmt + data)
// so that parseWAV can correctly locate the audio payload.
func buildTestWAV(pcm []byte) []byte {
	// PCM WAV layout:
	//   RIFF chunk descriptor  (12 bytes)
	//   fmt  sub-chunk         (24 bytes: 8 header + 16 data)
	//   data sub-chunk         ( 8 bytes: 8 header + len(pcm) data)
	fmtSize := uint32(16)
	dataSize := uint32(len(pcm))
	fileSize := 4 + (8 + fmtSize) + (8 + dataSize) // WAVE + fmt chunk + data chunk

	buf := make([]byte, 0, 12+8+fmtSize+8+dataSize)
	le := binary.LittleEndian

	putU32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	// RIFF chunk.
	buf = append(buf, []byte("RIFF")...)
	putU32(fileSize)
	buf = append(buf, []byte("WAVE")...)

	// fmt sub-chunk.
	buf = append(buf, []byte("fmt ")...)
	putU32(fmtSize)
	putU16(1)     // PCM format
	putU16(1)     // 1 channel (mono)
	putU32(16000) // sample rate
	putU32(32000) // byte rate = SampleRate * NumChannels * BitsPerSample/8
	putU16(2)     // block align
	putU16(16)    // bits per sample

	// data sub-chunk.
	buf = append(buf, []byte("data")...)
	putU32(dataSize)
	buf = append(buf, pcm...)

	return buf
}

// drainAudio reads all []byte chunks from the audio channel until it is closed
// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

// ---- Provider creation ----

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash trimmed", p.serverURL)
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002",
			WithLanguage("de-DE"),
			WithTimeout(5*time.Second),
			WithAPIMode(APIModeXTTS),
			WithDefaultSpeaker("Ana Florence"),
		)
		if p.language != "de" {
			t.Errorf("language = %q, want de", p.language)
		}
		if p.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v", p.httpClient.Timeout)
		}
		if p.apiMode != APIModeXTTS {
			t.Errorf("apiMode = %q", p.apiMode)
		}
		if p.defaultSpeaker != "Ana Florence" {
			t.Errorf("defaultSpeaker = %q", p.defaultSpeaker)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty server URL")
		}
	})
}

// ---- Synthesize ----

func TestSynthesize_StandardAPI(t *testing.T) {
	t.Parallel()

	wav := buildTestWAV([]byte{1, 2, 3, 4})
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithLanguage("en"))
	clip, err := p.Synthesize(t.Context(), "Okay.", tts.VoiceProfile{ID: "p225"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Format != "audio/wav" {
		t.Errorf("format = %q, want audio/wav", clip.Format)
	}
	if string(clip.Data) != string(wav) {
		t.Error("clip data does not match served WAV")
	}
	if got := gotQuery["text"]; len(got) != 1 || got[0] != "Okay." {
		t.Errorf("text = %v", got)
	}
	if got := gotQuery["speaker_id"]; len(got) != 1 || got[0] != "p225" {
		t.Errorf("speaker_id = %v", got)
	}
	if got := gotQuery["language_id"]; len(got) != 1 || got[0] != "en" {
		t.Errorf("language_id = %v", got)
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()

	wav := buildTestWAV([]byte{9, 9})
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithDefaultSpeaker("Ana"))
	if _, err := p.Synthesize(t.Context(), "Hello there.", tts.VoiceProfile{}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Text != "Hello there." || got.SpeakerWav != "Ana" || got.Language != "en" {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesize_XTTSRequiresSpeaker(t *testing.T) {
	t.Parallel()
	p := mustNew(t, "http://localhost:8002", WithAPIMode(APIModeXTTS))
	if _, err := p.Synthesize(t.Context(), "hi", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error without a speaker in XTTS mode")
	}
}

func TestSynthesize_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    []byte
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: []byte("boom")},
		{name: "not a WAV", status: http.StatusOK, body: []byte("<html>nope</html>")},
		{name: "empty data chunk", status: http.StatusOK, body: buildTestWAV(nil), wantErr: tts.ErrEmptyAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			p := mustNew(t, srv.URL)
			_, err := p.Synthesize(t.Context(), "hi", tts.VoiceProfile{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "coqui:") {
				t.Errorf("error %q missing 'coqui:' prefix", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Synthesize(ctx, "hi", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error on context timeout")
	}
}

// ---- ListVoices ----

func TestListVoices(t *testing.T) {
	// Mock /studio_speakers returning a JSON object with two speaker names.
	rawResp := map[string]any{
		"speaker_alice": map[string]any{"type": "studio"},
		"speaker_bob":   map[string]any{"type": "studio"},
	}
	data, _ := json.Marshal(rawResp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}

	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}

	// Sorted order: alice before bob.
	if voices[0].ID != "speaker_alice" {
		t.Errorf("voices[0].ID = %q, want %q", voices[0].ID, "speaker_alice")
	}
	if voices[1].ID != "speaker_bob" {
		t.Errorf("voices[1].ID = %q, want %q", voices[1].ID, "speaker_bob")
	}
	for _, v := range voices {
		if v.Provider != "coqui" {
			t.Errorf("voice %q Provider = %q, want %q", v.ID, v.Provider, "coqui")
		}
		if v.Metadata["type"] != "studio" {
			t.Errorf("voice %q metadata type = %q, want studio", v.ID, v.Metadata["type"])
		}
	}
}

func TestListVoices_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.ListVoices(context.Background())
	if err == nil {
		t.Fatal("expected error on server failure, got nil")
	}
	if !strings.Contains(err.Error(), "coqui:") {
		t.Errorf("error %q missing 'coqui:' prefix", err.Error())
	}
}

func TestListVoices_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.ListVoices(ctx)
	if err == nil {
		t.Fatal("expected error on context timeout, got nil")
	}
}

// ---- parseWAV ----

func TestParseWAV(t *testing.T) {
	t.Run("valid WAV", func(t *testing.T) {
		pcm := []byte{0x01, 0x02, 0x03, 0x04}
		wav := buildTestWAV(pcm)
		info, err := parseWAV(wav)
		if err != nil {
			t.Fatalf("parseWAV: %v", err)
		}
		if info.DataOffset != len(wav)-len(pcm) {
			t.Errorf("offset = %d, want %d", info.DataOffset, len(wav)-len(pcm))
		}
		if info.SampleRate != 16000 || info.Channels != 1 {
			t.Errorf("format = %d Hz x%d", info.SampleRate, info.Channels)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := parseWAV([]byte{0x01, 0x02}); err == nil {
			t.Fatal("expected error for short input")
		}
	})

	t.Run("not RIFF", func(t *testing.T) {
		buf := make([]byte, 44)
		copy(buf, "XXXX")
		if _, err := parseWAV(buf); err == nil {
			t.Fatal("expected error for non-RIFF header")
		}
	})

	t.Run("not WAVE", func(t *testing.T) {
		buf := make([]byte, 44)
		copy(buf, "RIFF")
		copy(buf[8:], "XXXX")
		if _, err := parseWAV(buf); err == nil {
			t.Fatal("expected error for non-WAVE identifier")
		}
	})

	t.Run("no data chunk", func(t *testing.T) {
		var buf []byte
		buf = append(buf, []byte("RIFF")...)
		buf = append(buf, 0, 0, 0, 0)
		buf = append(buf, []byte("WAVE")...)
		buf = append(buf, []byte("fmt ")...)
		buf = append(buf, 4, 0, 0, 0)
		buf = append(buf, 0, 0, 0, 0)
		if _, err := parseWAV(buf); err == nil {
			t.Fatal("expected error when data chunk is absent")
		}
	})
}

func TestListVoices_StandardAPI(t *testing.T) {
	t.Parallel()

	t.Run("multi-speaker model", func(t *testing.T) {
		t.Parallel()

		details := detailsResponse{
			ModelName: "tts_models/en/vctk/vits",
			Language:  "en",
			Speakers:  []string{"p225", "p226", "p227"},
		}
		data, _ := json.Marshal(details)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != detailsEndpoint {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
		}))
		defer srv.Close()

		p := mustNew(t, srv.URL, WithAPIMode(APIModeStandard))
		voices, err := p.ListVoices(context.Background())
		if err != nil {
			t.Fatalf("ListVoices: %v", err)
		}

		if len(voices) != 3 {
			t.Fatalf("got %d voices, want 3", len(voices))
		}
		// Sorted order: p225, p226, p227.
		wantIDs := []string{"p225", "p226", "p227"}
		for i, v := range voices {
			if v.ID != wantIDs[i] {
				t.Errorf("voices[%d].ID = %q, want %q", i, v.ID, wantIDs[i])
			}
			if v.Provider != "coqui" {
				t.Errorf("voices[%d].Provider = %q, want coqui", i, v.Provider)
			}
			if v.Metadata["type"] != "speaker" {
				t.Errorf("voices[%d] metadata type = %q, want speaker", i, v.Metadata["type"])
			}
			if v.Metadata["model_name"] != "tts_models/en/vctk/vits" {
				t.Errorf("voices[%d] metadata model_name = %q", i, v.Metadata["model_name"])
			}
		}
	})

	t.Run("single-speaker model", func(t *testing.T) {
		t.Parallel()

		details := detailsResponse{
			ModelName: "tts_models/en/ljspeech/vits",
			Language:  "en",
			Speakers:  nil,
		}
		data, _ := json.Marshal(details)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != detailsEndpoint {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
		}))
		defer srv.Close()

		p := mustNew(t, srv.URL, WithAPIMode(APIModeStandard))
		voices, err := p.ListVoices(context.Background())
		if err != nil {
			t.Fatalf("ListVoices: %v", err)
		}

		if len(voices) != 1 {
			t.Fatalf("got %d voices, want 1", len(voices))
		}
		if voices[0].ID != "tts_models/en/ljspeech/vits" {
			t.Errorf("voices[0].ID = %q, want model name", voices[0].ID)
		}
		if voices[0].Provider != "coqui" {
			t.Errorf("voices[0].Provider = %q, want coqui", voices[0].Provider)
		}
		if voices[0].Metadata["type"] != "single-speaker" {
			t.Errorf("voices[0] metadata type = %q, want single-speaker", voices[0].Metadata["type"])
		}
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := mustNew(t, srv.URL, WithAPIMode(APIModeStandard))
		_, err := p.ListVoices(context.Background())
		if err == nil {
			t.Fatal("expected error on server failure, got nil")
		}
		if !strings.Contains(err.Error(), "coqui:") {
			t.Errorf("error %q missing 'coqui:' prefix", err.Error())
		}
	})
}
