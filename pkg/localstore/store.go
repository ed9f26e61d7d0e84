// Package localstore provides the durable key-value byte store that mirrors
// draft collections between edits. Values are opaque; keys are derived by the
// caller from the draft scope.
package localstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("localstore: key not found")

// Store is a synchronous key-value byte store. Put must be durable before it returns.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
