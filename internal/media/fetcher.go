package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const fetchTimeout = 60 * time.Second

// Transcriber converts a local audio file to text. Implementations are
// best-effort: they return "" instead of an error when transcription is
// unavailable or fails.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) string
}

// FetchResult is the outcome of an attachment fetch. Fetch never fails from
// the caller's point of view: a degraded result carries fallback display
// text and no local path.
type FetchResult struct {
	Text     string // display text for the message intake
	Path     string // local file path ("" when the download did not complete)
	Kind     Kind   // media kind, meaningful only when Path is set
	Degraded bool   // true when the result is a fallback, not fetched media
}

// FetcherConfig configures the attachment fetcher.
type FetcherConfig struct {
	MediaDir    string // directory for downloaded files, created on first use
	FilePrefix  string // filename prefix, e.g. "zalo" (default: "media")
	Client      *http.Client
	Transcriber Transcriber // optional: audio transcription
	Store       *Store      // optional: attachment index
	Logger      *slog.Logger
}

// Fetcher downloads remote attachments, persists them under content-derived
// names and classifies them by response content type.
type Fetcher struct {
	mediaDir    string
	filePrefix  string
	client      *http.Client
	transcriber Transcriber
	store       *Store
	logger      *slog.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "media"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: fetchTimeout}
	}
	return &Fetcher{
		mediaDir:    cfg.MediaDir,
		filePrefix:  cfg.FilePrefix,
		client:      cfg.Client,
		transcriber: cfg.Transcriber,
		store:       cfg.Store,
		logger:      cfg.Logger,
	}
}

// Fetch downloads the attachment at href and returns a display text plus the
// local path of the saved file. Every failure path yields a degraded result;
// the caller never sees an error.
func (f *Fetcher) Fetch(ctx context.Context, href string) FetchResult {
	if href == "" {
		return FetchResult{Text: "[attachment: no URL]", Degraded: true}
	}

	f.logger.Info("fetching attachment", "url", href)

	res, err := f.download(ctx, href)
	if err != nil {
		f.logger.Error("attachment download failed", "url", href, "err", err)
		return FetchResult{Text: fmt.Sprintf("[attachment: %s]", href), Degraded: true}
	}
	return res
}

func (f *Fetcher) download(ctx context.Context, href string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("attachment download rejected", "url", href, "status", resp.StatusCode)
		return FetchResult{Text: "[attachment: download failed]", Degraded: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, fmt.Errorf("read body: %w", err)
	}

	if err := os.MkdirAll(f.mediaDir, 0o755); err != nil {
		return FetchResult{}, fmt.Errorf("create media dir: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	hash := urlHash(href)
	name := f.filePrefix + "_" + hash + ExtensionForMIME(contentType)
	path := filepath.Join(f.mediaDir, name)

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return FetchResult{}, fmt.Errorf("write file: %w", err)
	}

	kind := KindForMIME(contentType)
	f.logger.Info("attachment saved", "path", path, "type", contentType, "kind", kind)

	text, transcript := f.describe(ctx, path, kind)

	f.record(ctx, Attachment{
		Hash:       hash,
		URL:        href,
		Path:       path,
		MimeType:   normalizeMIME(contentType),
		Kind:       string(kind),
		Size:       int64(len(body)),
		Transcript: transcript,
	})

	return FetchResult{Text: text, Path: path, Kind: kind}, nil
}

// describe builds the display text for a saved file. Audio is routed through
// the transcriber first; a failed or unconfigured transcription falls back
// to the generic "[kind: path]" form.
func (f *Fetcher) describe(ctx context.Context, path string, kind Kind) (text, transcript string) {
	if kind == KindAudio && f.transcriber != nil {
		if t := f.transcriber.TranscribeFile(ctx, path); t != "" {
			return fmt.Sprintf("[transcription: %s]", t), t
		}
	}
	return fmt.Sprintf("[%s: %s]", kind, path), ""
}

// record writes the attachment to the index, best-effort.
func (f *Fetcher) record(ctx context.Context, att Attachment) {
	if f.store == nil {
		return
	}
	if err := f.store.Record(ctx, att); err != nil {
		f.logger.Warn("failed to index attachment", "hash", att.Hash, "err", err)
	}
}

// urlHash derives a stable 16-hex-char filename component from a URL.
func urlHash(href string) string {
	sum := sha256.Sum256([]byte(href))
	return hex.EncodeToString(sum[:])[:16]
}
