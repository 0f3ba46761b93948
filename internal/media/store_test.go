package media

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "media.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRecordAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	att := Attachment{
		Hash:       "abcd1234abcd1234",
		URL:        "https://example.com/voice.mp3",
		Path:       "/tmp/zalo_abcd1234abcd1234.mp3",
		MimeType:   "audio/mpeg",
		Kind:       string(KindAudio),
		Size:       2048,
		Transcript: "hello",
	}
	require.NoError(t, s.Record(ctx, att))

	got, err := s.ByHash(ctx, att.Hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, att.URL, got.URL)
	assert.Equal(t, att.Path, got.Path)
	assert.Equal(t, att.Transcript, got.Transcript)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStoreLookupMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ByHash(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreRecordReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	att := Attachment{Hash: "h1", URL: "https://example.com/a", Path: "/tmp/a.png"}
	require.NoError(t, s.Record(ctx, att))

	att.Path = "/tmp/b.png"
	require.NoError(t, s.Record(ctx, att))

	got, err := s.ByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/tmp/b.png", got.Path)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
