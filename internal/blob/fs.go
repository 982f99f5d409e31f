package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore stores artifacts under a local directory served at a public base
// URL. This is the default driver for development and single-node deploys.
type FSStore struct {
	dir     string
	baseURL string
}

// NewFSStore creates an FSStore rooted at dir.
func NewFSStore(dir, baseURL string) *FSStore {
	return &FSStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload copies the local artifact into the store directory.
func (s *FSStore) Upload(_ context.Context, localPath, destPath string) (string, error) {
	target := filepath.Join(s.dir, filepath.FromSlash(destPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create blob file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("close blob file: %w", err)
	}

	return s.baseURL + "/" + destPath, nil
}
