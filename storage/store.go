package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when the key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key-value contract the engine persists through.
//
// Implementations must be safe for concurrent use. Delete of an absent key
// is a no-op, not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
