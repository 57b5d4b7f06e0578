// Package storage writes evidence objects to the configured object store.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ObjectStore persists opaque evidence blobs under server-generated keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("storage: invalid object key")

var extensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"image/heic":      "heic",
	"application/pdf": "pdf",
	"text/plain":      "txt",
	"video/mp4":       "mp4",
}

// ExtensionFor maps an accepted MIME type to the file extension used in object keys.
func ExtensionFor(mimeType string) string {
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return "bin"
}

// NewObjectKey derives "{caseID}/{unixMillis}_{random}.{ext}". No part of the
// key comes from the uploaded file name.
func NewObjectKey(caseID, mimeType string, now time.Time) (string, error) {
	caseID = sanitizeSegment(caseID)
	if caseID == "" {
		return "", fmt.Errorf("%w: case id is required", ErrInvalidKey)
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("storage: random suffix: %w", err)
	}

	return fmt.Sprintf("%s/%d_%s.%s", caseID, now.UnixMilli(), hex.EncodeToString(suffix), ExtensionFor(mimeType)), nil
}

func validateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

func sanitizeSegment(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(value))
}
