// Package storage defines the key-value persistence substrate used to cache
// session, cart, favorites and order state between runs.
package storage

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("key not found")

// Store is a byte-oriented key-value store. Values are JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value stored under key into v. It reports false, with
// a nil error, when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "get %q", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decode %q", key)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}
	if err := s.Put(ctx, key, data); err != nil {
		return errors.Wrapf(err, "put %q", key)
	}
	return nil
}
