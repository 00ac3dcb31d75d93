package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown content id.
var ErrNotFound = errors.New("storage: blob not found")

// BlobStore holds the separately-encrypted large payloads referenced by
// vault entries. Values are opaque ciphertext; the store never sees a key.
// Delete of an absent blob is not an error: the postcondition already holds.
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	// IDs enumerates every stored content id, in no particular order.
	IDs(ctx context.Context) ([]string, error)
	Close() error
}
