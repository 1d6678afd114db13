// Package file implements storage.Store as one JSON file per key inside a
// directory, the on-disk counterpart of browser local storage.
package file

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store persists values under dir. Writes go through a temporary file and a
// rename so a crash never leaves a truncated value behind.
type Store struct {
	dir string
}

// New creates dir if needed and returns a Store rooted at it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create state dir %s", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Get reads the file for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "read %q", key)
	}
	return data, nil
}

// Put atomically replaces the file for key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %q", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %q", key)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return errors.Wrapf(err, "commit %q", key)
	}
	return nil
}

// Delete removes the file for key. Missing files are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "delete %q", key)
	}
	return nil
}
