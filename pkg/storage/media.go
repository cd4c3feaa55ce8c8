package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Media stores uploaded recordings on local disk under a base directory. The
// database keeps paths relative to the base so the directory can move between
// deployments.
type Media struct {
	dir string
}

// NewMedia creates a local media store rooted at dir.
func NewMedia(dir string) (*Media, error) {
	if dir == "" {
		return nil, fmt.Errorf("media directory not configured")
	}
	if err := os.MkdirAll(filepath.Join(dir, FolderAudios), 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &Media{dir: dir}, nil
}

// SaveAudio writes an uploaded recording to disk under a random name,
// preserving the original extension, and returns the path relative to the
// base directory.
func (m *Media) SaveAudio(src io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if ext == "" {
		ext = ".mp3"
	}
	rel := filepath.Join(FolderAudios, uuid.New().String()+ext)
	abs := filepath.Join(m.dir, rel)

	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		os.Remove(abs)
		return "", fmt.Errorf("write media file: %w", err)
	}
	return rel, nil
}

// Abs resolves a stored relative path to an absolute one.
func (m *Media) Abs(rel string) string {
	return filepath.Join(m.dir, rel)
}

// Remove deletes a stored recording. Missing files are not an error.
func (m *Media) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(m.Abs(rel))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
