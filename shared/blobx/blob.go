package blobx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyBlob   = errors.New("blob is empty")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Store persists opaque blobs (evidence photos, signature images) and
// returns a URL reference. Records keep the URL, never the bytes.
// Delete removes a blob whose record never materialized; a missing
// blob is not an error.
type Store interface {
	Store(ctx context.Context, data []byte, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// FSStore writes blobs under a base directory and returns URLs under a
// public base URL. Paths are relative, forward-slash separated.
type FSStore struct {
	baseDir string
	baseURL string
}

func NewFSStore(baseDir string, baseURL string) (*FSStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, errors.New("BLOB_DIR is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}, nil
}

func (s *FSStore) Store(ctx context.Context, data []byte, path string) (string, error) {
	if s == nil {
		return "", errors.New("blob store not initialized")
	}
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}
	rel, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob subdir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize blob: %w", err)
	}
	return s.baseURL + "/" + rel, nil
}

func (s *FSStore) Delete(ctx context.Context, path string) error {
	if s == nil {
		return errors.New("blob store not initialized")
	}
	rel, err := cleanPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func cleanPath(path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return "", ErrInvalidPath
	}
	cleaned := filepath.ToSlash(filepath.Clean(path))
	if cleaned == "." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
