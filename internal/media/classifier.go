package media

import "strings"

// Kind is a coarse classification of downloaded media.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// mimeExtensions maps normalized content types to file extensions.
// Unknown types map to an empty extension.
var mimeExtensions = map[string]string{
	// Images
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",
	"image/tiff":    ".tiff",
	"image/x-icon":  ".ico",

	// Audio
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/mp4":   ".m4a",
	"audio/wav":   ".wav",
	"audio/wave":  ".wav",
	"audio/x-wav": ".wav",
	"audio/aac":   ".aac",
	"audio/webm":  ".weba",
	"audio/flac":  ".flac",
	"audio/x-m4a": ".m4a",

	// Video
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/avi":        ".avi",
	"video/x-msvideo":  ".avi",
	"video/mpeg":       ".mpeg",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"video/3gpp":       ".3gp",
	"video/x-flv":      ".flv",

	// Documents
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"text/plain":       ".txt",
	"text/csv":         ".csv",
	"text/html":        ".html",
	"application/json": ".json",
	"application/xml":  ".xml",
	"text/xml":         ".xml",

	// Archives
	"application/zip":              ".zip",
	"application/x-zip-compressed": ".zip",
	"application/x-rar-compressed": ".rar",
	"application/x-7z-compressed":  ".7z",
	"application/x-tar":            ".tar",
	"application/gzip":             ".gz",

	// Other
	"application/octet-stream": ".bin",
}

// normalizeMIME strips parameters after ";", trims whitespace and lowercases.
func normalizeMIME(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// ExtensionForMIME returns the file extension for a content type,
// or "" when the type is unknown.
func ExtensionForMIME(contentType string) string {
	return mimeExtensions[normalizeMIME(contentType)]
}

// KindForMIME classifies a content type into a coarse media kind.
func KindForMIME(contentType string) Kind {
	ct := normalizeMIME(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case strings.HasPrefix(ct, "video/"):
		return KindVideo
	case strings.HasPrefix(ct, "audio/"), strings.Contains(ct, "audio"):
		return KindAudio
	default:
		return KindFile
	}
}
