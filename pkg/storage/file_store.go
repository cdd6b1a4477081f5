package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements BlobStore on local disk under a base directory.
// Keys use forward slashes and are confined to the base path.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the root directory of the store.
func (f *FileStore) BasePath() string {
	return f.basePath
}

func (f *FileStore) resolve(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob key %q escapes storage root", key)
	}
	return filepath.Join(f.basePath, clean), nil
}

// Put writes a blob through a temp file in the destination directory and
// renames it into place, so a failure on any exit path leaves no partial
// file under the key.
func (f *FileStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("write blob %s: wrote %d bytes, expected %d", key, written, size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("finalize blob: %w", err)
	}
	return nil
}

// Get opens a blob for reading.
func (f *FileStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Delete removes a blob. Deleting an absent key is not an error.
func (f *FileStore) Delete(_ context.Context, key string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Exists reports whether a blob is present.
func (f *FileStore) Exists(_ context.Context, key string) (bool, error) {
	target, err := f.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}
