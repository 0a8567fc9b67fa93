// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package attachments

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound        = errors.New("attachment not found")
	ErrUnsupportedType = errors.New("unsupported audio type")
	ErrInvalidName     = errors.New("invalid attachment name")
)

// Storage keeps audio blobs under generated names
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns ErrNotFound for unknown names
	Open(ctx context.Context, name string) (*Object, error)
	Delete(ctx context.Context, name string) error
}

// Object is an opened blob; the caller closes Body
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// allowedTypes maps accepted audio MIME types to the extension used when the
// upload carries none
var allowedTypes = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/wave":  ".wav",
	"audio/x-wav": ".wav",
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/aac":   ".aac",
}

// NormalizeType strips parameters and lowercases contentType, then checks it
// against the allow-list
func NormalizeType(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrUnsupportedType
	}
	mediaType = strings.ToLower(mediaType)
	if _, ok := allowedTypes[mediaType]; !ok {
		return "", ErrUnsupportedType
	}
	return mediaType, nil
}

var (
	nameRx = regexp.MustCompile(`^audio-[0-9A-HJKMNP-TV-Z]{26}\.[a-z0-9]{1,5}$`)
	extRx  = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

// NewName returns a time-sortable object name such as
// audio-01JABCDEF0123456789ABCDEFG.webm. The extension comes from the
// original file name when it is short and alphanumeric, else from the type.
func NewName(originalName, contentType string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !extRx.MatchString(ext) {
		ext = allowedTypes[contentType]
		if ext == "" {
			ext = ".bin"
		}
	}
	id := ulid.MustNew(ulid.Timestamp(at), rand.Reader)
	return "audio-" + id.String() + ext
}

// ValidName reports whether name could have come from NewName. Storage
// implementations reject anything else so request paths cannot escape.
func ValidName(name string) bool {
	return nameRx.MatchString(name)
}

// ContentTypeFor guesses the stored type from the name's extension
func ContentTypeFor(name string) string {
	if mediaType, ok := canonical[filepath.Ext(name)]; ok {
		return mediaType
	}
	return "application/octet-stream"
}

var canonical = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}
