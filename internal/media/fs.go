package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

// FSStore writes uploads into a local directory.
type FSStore struct {
	dir string
	now func() time.Time
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media directory %s: %w", dir, err)
	}
	dir = abs
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory %s: %w", dir, err)
	}
	return &FSStore{dir: dir, now: time.Now}, nil
}

// Save implements Store.
func (s *FSStore) Save(_ context.Context, conversationID, tag, mimeType string, data []byte) (models.MediaRef, error) {
	if len(data) == 0 {
		return models.MediaRef{}, ErrEmpty
	}
	mimeType = DetectMimetype(mimeType, data)
	name := FileName(conversationID, tag, mimeType, s.now())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		slog.Error("Media save failed", "error", err, "path", path)
		return models.MediaRef{}, fmt.Errorf("write media %s: %w", name, err)
	}
	slog.Debug("Media saved", "path", path, "bytes", len(data), "tag", tag)
	return models.MediaRef{Location: path, Mimetype: mimeType, Tag: tag}, nil
}

// Load implements Store. Only files inside the store directory are readable.
func (s *FSStore) Load(_ context.Context, ref models.MediaRef) ([]byte, error) {
	path := filepath.Clean(ref.Location)
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("media %s is outside the store", ref.Location)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", ref.Location, err)
	}
	return data, nil
}
