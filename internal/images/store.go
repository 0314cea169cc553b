// Package images stores note-owned binary images. Blobs live under the
// owning note's hash prefix and are immutable once uploaded; they disappear
// with the note through deletion or the retention sweep.
package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/permashare/backend/internal/identity"
	"github.com/permashare/backend/internal/objstore"
)

const listPageSize = 1000

var (
	errMissingStore = errors.New("object store is required")
	noOpLogger      = zap.NewNop()

	// ErrImageNotFound reports that no image exists for the requested path.
	ErrImageNotFound = errors.New("images: image not found")
)

const (
	opStoreNew     = "images.store.new"
	opPut          = "images.put"
	opGet          = "images.get"
	opDeletePrefix = "images.delete_prefix"
)

// StoreError wraps a failed image operation with a dotted code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error { return e.err }

// Code returns the dotted operation.reason code.
func (e *StoreError) Code() string { return e.code }

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig carries the dependencies for a Store.
type StoreConfig struct {
	Store   objstore.Store
	Logger  *zap.Logger
	BaseURL string
}

// Store reads and writes image blobs on the object store.
type Store struct {
	store   objstore.Store
	logger  *zap.Logger
	baseURL string
}

// NewStore validates the configuration and builds a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Store == nil {
		return nil, newStoreError(opStoreNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{store: cfg.Store, logger: logger, baseURL: cfg.BaseURL}, nil
}

// UploadResult reports where an uploaded image landed.
type UploadResult struct {
	URL string
	Key string
}

// Put stores one image under its owning note's prefix.
func (s *Store) Put(ctx context.Context, noteHash, filename, contentType string, data []byte) (UploadResult, error) {
	key := identity.ImageKey(noteHash, filename)
	err := s.store.Put(ctx, key, objstore.Object{Data: data, ContentType: contentType})
	if err != nil {
		s.logger.Error("image write failed",
			zap.String("operation", opPut),
			zap.String("key", key),
			zap.Error(err))
		return UploadResult{}, newStoreError(opPut, "write_failed", err)
	}
	return UploadResult{
		URL: fmt.Sprintf("%s/i/%s/%s", s.baseURL, noteHash, filename),
		Key: key,
	}, nil
}

// Image is a served blob with its stored content type.
type Image struct {
	Data        []byte
	ContentType string
}

// Get returns one stored image, or ErrImageNotFound.
func (s *Store) Get(ctx context.Context, noteHash, filename string) (Image, error) {
	obj, err := s.store.Get(ctx, identity.ImageKey(noteHash, filename))
	if errors.Is(err, objstore.ErrNotFound) {
		return Image{}, ErrImageNotFound
	}
	if err != nil {
		s.logger.Error("image read failed",
			zap.String("operation", opGet),
			zap.String("note_hash", noteHash),
			zap.Error(err))
		return Image{}, newStoreError(opGet, "read_failed", err)
	}
	return Image{Data: obj.Data, ContentType: obj.ContentType}, nil
}

// DeletePrefix removes every image owned by a note, paging through the
// prefix listing until it is no longer truncated. Best-effort by design; the
// first failure is returned after an attempt on the current page.
func (s *Store) DeletePrefix(ctx context.Context, noteHash string) error {
	prefix := identity.ImagePrefix(noteHash)
	cursor := ""
	started := time.Now()
	deleted := 0

	for {
		page, err := s.store.List(ctx, prefix, cursor, listPageSize)
		if err != nil {
			s.logger.Error("image listing failed",
				zap.String("operation", opDeletePrefix),
				zap.String("note_hash", noteHash),
				zap.Error(err))
			return newStoreError(opDeletePrefix, "list_failed", err)
		}
		for _, key := range page.Keys {
			if err := s.store.Delete(ctx, key); err != nil {
				s.logger.Error("image delete failed",
					zap.String("operation", opDeletePrefix),
					zap.String("key", key),
					zap.Error(err))
				return newStoreError(opDeletePrefix, "delete_failed", err)
			}
			deleted++
		}
		if !page.Truncated {
			break
		}
		cursor = page.NextCursor
	}

	if deleted > 0 {
		s.logger.Info("note images deleted",
			zap.String("note_hash", noteHash),
			zap.Int("count", deleted),
			zap.Duration("elapsed", time.Since(started)))
	}
	return nil
}
