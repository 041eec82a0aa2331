// Package media stores customer uploads (financing documents and vehicle photos).
//
// Files are named <conversation>_<tag>_<unixmilli>.<ext>, the extension
// derived from the declared MIME type.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zailonsoft/carbot/internal/models"
)

// ErrEmpty is returned when an upload carries no bytes.
var ErrEmpty = errors.New("media: empty upload")

// Store persists uploads.
type Store interface {
	Save(ctx context.Context, conversationID, tag, mimeType string, data []byte) (models.MediaRef, error)
	Load(ctx context.Context, ref models.MediaRef) ([]byte, error)
}

// Extension returns the file extension, without the dot, for a MIME type.
// Unknown types fall back to the MIME subtype, and an empty type to "bin".
func Extension(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if base == "" {
		return "bin"
	}
	if m := mimetype.Lookup(base); m != nil {
		if ext := strings.TrimPrefix(m.Extension(), "."); ext != "" {
			return ext
		}
	}
	if i := strings.LastIndex(base, "/"); i >= 0 && i < len(base)-1 {
		return sanitize(base[i+1:])
	}
	return "bin"
}

// FileName builds the stored file name for an upload.
func FileName(conversationID, tag, mimeType string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d.%s", sanitize(conversationID), sanitize(tag), at.UnixMilli(), Extension(mimeType))
}

// sanitize keeps characters that are safe in file names and object keys.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '@':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// DetectMimetype sniffs data when the channel did not declare a type.
func DetectMimetype(declared string, data []byte) string {
	if strings.TrimSpace(declared) != "" {
		return declared
	}
	return mimetype.Detect(data).String()
}
