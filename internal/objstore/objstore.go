// Package objstore defines the key-value blob storage substrate backing
// every persisted record: notes, vault indexes, themes, and images.
package objstore

import (
	"context"
	"errors"
)

// ErrNotFound reports that no object exists at the requested key. Absence is
// a normal outcome for callers, never a storage fault.
var ErrNotFound = errors.New("objstore: object not found")

// Object is a stored blob together with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// ListPage is one page of a prefix listing.
type ListPage struct {
	Keys       []string
	NextCursor string
	Truncated  bool
}

// Store is the persistence substrate. Implementations must provide
// read-after-write consistency within a single call chain: a Get issued
// after a successful Put on the same key observes that Put.
type Store interface {
	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) (Object, error)
	// Put stores the object at key, overwriting any existing object.
	Put(ctx context.Context, key string, obj Object) error
	// Delete removes the object at key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
	// List returns up to limit keys under prefix, starting after cursor.
	// An empty cursor starts from the beginning.
	List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error)
}
