package media

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTranscriber struct {
	text string
}

func (f *fakeTranscriber) TranscribeFile(ctx context.Context, path string) string {
	return f.text
}

func newTestFetcher(t *testing.T, transcriber Transcriber) *Fetcher {
	t.Helper()
	return NewFetcher(FetcherConfig{
		MediaDir:    t.TempDir(),
		FilePrefix:  "zalo",
		Transcriber: transcriber,
		Logger:      testLogger(),
	})
}

func TestFetchNoURL(t *testing.T) {
	f := newTestFetcher(t, nil)

	res := f.Fetch(context.Background(), "")
	assert.Equal(t, "[attachment: no URL]", res.Text)
	assert.Empty(t, res.Path)
	assert.True(t, res.Degraded)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), srv.URL+"/photo.jpg")

	assert.Equal(t, "[attachment: download failed]", res.Text)
	assert.Empty(t, res.Path)
	assert.True(t, res.Degraded)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/gone"
	srv.Close() // connection refused from here on

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), url)

	assert.Equal(t, "[attachment: "+url+"]", res.Text)
	assert.Empty(t, res.Path)
	assert.True(t, res.Degraded)
}

func TestFetchImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png; charset=binary")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), srv.URL+"/pic")

	require.NotEmpty(t, res.Path)
	assert.False(t, res.Degraded)
	assert.Equal(t, KindImage, res.Kind)
	assert.True(t, strings.HasSuffix(res.Path, ".png"), "path %q should end in .png", res.Path)
	assert.Equal(t, "["+string(KindImage)+": "+res.Path+"]", res.Text)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	// filename carries the channel prefix and the 16-char URL hash
	assert.Contains(t, res.Path, "zalo_")
}

func TestFetchAudioTranscribed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, &fakeTranscriber{text: "hello world"})
	res := f.Fetch(context.Background(), srv.URL+"/voice")

	require.NotEmpty(t, res.Path)
	assert.Equal(t, KindAudio, res.Kind)
	assert.True(t, strings.HasSuffix(res.Path, ".mp3"), "path %q should end in .mp3", res.Path)
	assert.Equal(t, "[transcription: hello world]", res.Text)
}

func TestFetchAudioTranscriptionUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	// A failing provider returns "", so fall back to the generic description.
	// The saved file is kept either way.
	f := newTestFetcher(t, &fakeTranscriber{text: ""})
	res := f.Fetch(context.Background(), srv.URL+"/voice")

	require.NotEmpty(t, res.Path)
	assert.Equal(t, "[audio: "+res.Path+"]", res.Text)

	_, err := os.Stat(res.Path)
	assert.NoError(t, err)
}

func TestFetchStableFilename(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/gif")
		w.Write([]byte("gif"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	first := f.Fetch(context.Background(), srv.URL+"/sticker")
	second := f.Fetch(context.Background(), srv.URL+"/sticker")

	assert.Equal(t, first.Path, second.Path, "same URL must map to the same local file")
	assert.Equal(t, 2, hits)
}
