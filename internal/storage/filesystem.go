package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var _ ObjectStore = (*FilesystemStore)(nil)

// FilesystemStore persists evidence on the local filesystem.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore initialises a filesystem-backed store rooted at dir.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: ensure root directory: %w", err)
	}
	return &FilesystemStore{root: dir}, nil
}

// Put writes body to key via a temp file so readers never observe partial objects.
func (s *FilesystemStore) Put(ctx context.Context, key string, body io.Reader, size int64, _ string) error {
	if s == nil {
		return errors.New("storage: store not initialised")
	}
	if err := validateKey(key); err != nil {
		return err
	}

	fullPath := s.absolute(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if err != nil {
		cleanup()
		return fmt.Errorf("storage: write object: %w", err)
	}
	if size >= 0 && written != size {
		cleanup()
		return fmt.Errorf("storage: short write: wrote %d of %d bytes", written, size)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: close object: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: commit object: %w", err)
	}
	return nil
}

// Delete removes the stored object. Missing objects are not an error.
func (s *FilesystemStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return errors.New("storage: store not initialised")
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.absolute(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

func (s *FilesystemStore) absolute(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if c.ctx != nil {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
	}
	return c.r.Read(p)
}
