// Package file implements a medium on a local directory, one file per key.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tarancss/walletboot/lib/store"
)

// keyRe restricts keys to names that are safe as file names.
var keyRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ErrBadKey is returned for keys that cannot be used as file names.
var ErrBadKey = errors.New("invalid key for file store")

// File implements store.Medium on the directory dir.
type File struct {
	dir string
}

// New returns a File medium rooted at dir, creating the directory with owner-only permissions if needed.
func New(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create store directory %s: %w", dir, err)
	}

	return &File{dir: dir}, nil
}

func (f *File) path(key string) (string, error) {
	if !keyRe.MatchString(key) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}

	return filepath.Join(f.dir, key), nil
}

// Get reads the file for key.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrDataNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", p, err)
	}

	return b, nil
}

// Set writes value to a temporary file, syncs it, renames it over the file for key and syncs the directory, so the
// value is either fully there or not at all after a crash.
func (f *File) Set(_ context.Context, key string, value []byte) (err error) {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temporary file: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("cannot set permissions: %w", err)
	}

	if _, err = tmp.Write(value); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("cannot write %s: %w", tmp.Name(), err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("cannot sync %s: %w", tmp.Name(), err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("cannot close %s: %w", tmp.Name(), err)
	}

	if err = os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("cannot rename to %s: %w", p, err)
	}

	return syncDir(f.dir)
}

// Exists reports whether the file for key is present.
func (f *File) Exists(_ context.Context, key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("cannot stat %s: %w", p, err)
	}

	return true, nil
}

// Close is a no-op: files are closed after each operation.
func (f *File) Close() error {
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("cannot open directory %s: %w", dir, err)
	}
	defer d.Close()

	// some platforms do not support syncing directories
	if err = d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("cannot sync directory %s: %w", dir, err)
	}

	return nil
}
