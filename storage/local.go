package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"audiovault/logger"
)

// LocalStore keeps files in a directory on disk. Locations are root/key.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the store directory.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Put(ctx context.Context, key, srcPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}

	dst := filepath.Join(s.root, key)
	if err := os.Rename(srcPath, dst); err != nil {
		// Rename fails across filesystems (e.g. TEMP_DIR on tmpfs).
		if err := copyFile(srcPath, dst); err != nil {
			return "", fmt.Errorf("failed to store %s: %w", key, err)
		}
		removeSource(srcPath)
	}
	return dst, nil
}

func (s *LocalStore) Open(ctx context.Context, location string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", location, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrObjectNotFound
	}
	return &Object{Body: f, Size: info.Size()}, nil
}

func (s *LocalStore) Delete(_ context.Context, location string) error {
	if err := os.Remove(location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", location, err)
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// removeSource deletes the file Put has finished with. A failure leaves a
// stray temp file behind, which is logged but does not fail the Put.
func removeSource(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("[Store] failed to remove source file", logger.String("path", path), logger.ErrorField(err))
	}
}
