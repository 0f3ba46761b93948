package media

import "testing"

func TestExtensionForMIME(t *testing.T) {
	tests := []struct {
		contentType string
		ext         string
	}{
		{"image/png", ".png"},
		{"image/png; charset=binary", ".png"},
		{"IMAGE/JPEG", ".jpg"},
		{"audio/mpeg", ".mp3"},
		{"  audio/ogg ; codecs=opus", ".ogg"},
		{"video/mp4", ".mp4"},
		{"application/pdf", ".pdf"},
		{"application/zip", ".zip"},
		{"application/octet-stream", ".bin"},
		{"application/unknown-x", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := ExtensionForMIME(tt.contentType); got != tt.ext {
				t.Errorf("ExtensionForMIME(%q) = %q, want %q", tt.contentType, got, tt.ext)
			}
		})
	}
}

func TestKindForMIME(t *testing.T) {
	tests := []struct {
		contentType string
		kind        Kind
	}{
		{"image/png", KindImage},
		{"image/webp; foo=bar", KindImage},
		{"video/quicktime", KindVideo},
		{"audio/mpeg", KindAudio},
		{"application/x-audio-container", KindAudio}, // "audio" substring counts
		{"application/pdf", KindFile},
		{"text/plain", KindFile},
		{"", KindFile},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := KindForMIME(tt.contentType); got != tt.kind {
				t.Errorf("KindForMIME(%q) = %q, want %q", tt.contentType, got, tt.kind)
			}
		})
	}
}
