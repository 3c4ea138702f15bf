package protocol

import (
	"fmt"
	"strings"
)

// videoExtensions lists the media types accepted for uploads.
var videoExtensions = map[string]bool{
	"mp4":  true,
	"mkv":  true,
	"avi":  true,
	"mov":  true,
	"wmv":  true,
	"flv":  true,
	"m4v":  true,
	"mpeg": true,
	"mpg":  true,
	"3gp":  true,
	"ts":   true,
	"webm": true,
}

// NormalizeMediaType lowercases an upload media type, strips a leading dot
// and rejects anything that is not a known video extension.
func NormalizeMediaType(mediaType string) (string, error) {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(mediaType), "."))
	if !videoExtensions[normalized] {
		return "", fmt.Errorf("%w: unsupported media type %q", ErrProtocol, mediaType)
	}
	return normalized, nil
}

// IsVideoMediaType reports whether mediaType names a supported video container.
func IsVideoMediaType(mediaType string) bool {
	_, err := NormalizeMediaType(mediaType)
	return err == nil
}
