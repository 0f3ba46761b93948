package provider

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.mp3")
	if err := os.WriteFile(path, []byte("not-really-mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeFileNoAPIKey(t *testing.T) {
	w := NewWhisperProvider(WhisperConfig{Logger: testLogger()})

	if got := w.TranscribeFile(context.Background(), writeTestAudio(t)); got != "" {
		t.Errorf("expected empty transcript without API key, got %q", got)
	}
}

func TestTranscribeFileMissingFile(t *testing.T) {
	w := NewWhisperProvider(WhisperConfig{APIKey: "k", Logger: testLogger()})

	if got := w.TranscribeFile(context.Background(), "/nonexistent/voice.mp3"); got != "" {
		t.Errorf("expected empty transcript for missing file, got %q", got)
	}
}

func TestTranscribeFileSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if model := r.FormValue("model"); model != "whisper-large-v3" {
			t.Errorf("unexpected model %q", model)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"text":"xin chào"}`))
	}))
	defer srv.Close()

	w := NewWhisperProvider(WhisperConfig{
		APIBase: srv.URL,
		APIKey:  "test-key",
		Logger:  testLogger(),
	})

	if got := w.TranscribeFile(context.Background(), writeTestAudio(t)); got != "xin chào" {
		t.Errorf("expected transcript, got %q", got)
	}
}

func TestTranscribeFileAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWhisperProvider(WhisperConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})

	// Best-effort contract: API failures yield "" and never an error.
	if got := w.TranscribeFile(context.Background(), writeTestAudio(t)); got != "" {
		t.Errorf("expected empty transcript on API error, got %q", got)
	}
}

func TestTranscribeLanguageField(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotLang = r.FormValue("language")
		rw.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	w := NewWhisperProvider(WhisperConfig{APIBase: srv.URL, APIKey: "k", Language: "vi", Logger: testLogger()})

	result, err := w.Transcribe(context.Background(), strings.NewReader("audio"), "audio.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "ok" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if gotLang != "vi" {
		t.Errorf("expected language field vi, got %q", gotLang)
	}
}
