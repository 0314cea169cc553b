package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/permashare/backend/internal/identity"
	"github.com/permashare/backend/internal/objstore"
)

var (
	errMissingStore = errors.New("object store is required")
	noOpLogger      = zap.NewNop()

	// ErrNoteNotFound reports that no note exists for the requested identity.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrHashCollision reports that the target storage key is already owned
	// by a note with a different vault or title. The truncated hash makes
	// this possible in principle; the repository rejects the write instead
	// of silently replacing an unrelated note.
	ErrHashCollision = errors.New("notes: hash collision with existing note")
)

const (
	opRepositoryNew = "notes.repository.new"
	opPublish       = "notes.publish"
	opList          = "notes.list"
	opGet           = "notes.get"
	opDelete        = "notes.delete"
)

// RepositoryError wraps a failed repository operation with a dotted code.
type RepositoryError struct {
	code string
	err  error
}

func (e *RepositoryError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *RepositoryError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation.reason code.
func (e *RepositoryError) Code() string {
	return e.code
}

func newRepositoryError(operation, reason string, cause error) error {
	return &RepositoryError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// RepositoryConfig carries the dependencies for a Repository.
type RepositoryConfig struct {
	Store   objstore.Store
	Clock   func() time.Time
	Logger  *zap.Logger
	BaseURL string
}

// Repository owns note records and per-vault indexes on top of the object
// store. Index read-modify-write is serialized per vault within this
// process; concurrent writers in other processes fall back to
// last-write-wins on the index object.
type Repository struct {
	store   objstore.Store
	clock   func() time.Time
	logger  *zap.Logger
	baseURL string

	indexMu sync.Mutex
	vaultMu map[string]*sync.Mutex
}

// NewRepository validates the configuration and builds a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Store == nil {
		return nil, newRepositoryError(opRepositoryNew, "missing_store", errMissingStore)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Repository{
		store:   cfg.Store,
		clock:   clock,
		logger:  logger,
		baseURL: cfg.BaseURL,
		vaultMu: make(map[string]*sync.Mutex),
	}, nil
}

// LinkedNoteInput is one additional note shared alongside the primary note.
type LinkedNoteInput struct {
	Title   string
	Content string
}

// PublishRequest is the input to Publish.
type PublishRequest struct {
	Vault         string
	Title         string
	Content       string
	LinkedNotes   []LinkedNoteInput
	RetentionDays int
}

// PublishResult reports the identity and public URL of the primary note.
type PublishResult struct {
	URL       string
	TitleSlug string
	Hash      string
}

// Publish writes the primary note and any linked notes, then registers every
// written note in the vault's index. Linked notes are persisted in parallel
// and strictly before the primary record, so a successful response
// guarantees every back-reference in the primary note is resolvable.
func (r *Repository) Publish(ctx context.Context, request PublishRequest) (PublishResult, error) {
	now := r.clock().UTC()

	primarySlug := identity.Slugify(request.Title)
	primaryHash := identity.NoteHash(request.Vault, request.Title)

	links := make([]LinkedNote, 0, len(request.LinkedNotes))
	group, groupCtx := errgroup.WithContext(ctx)
	for _, linked := range request.LinkedNotes {
		slug := identity.Slugify(linked.Title)
		hash := identity.NoteHash(request.Vault, linked.Title)
		links = append(links, LinkedNote{TitleSlug: slug, Hash: hash})

		note := Note{
			Vault:         request.Vault,
			TitleSlug:     slug,
			Hash:          hash,
			Title:         linked.Title,
			Content:       linked.Content,
			UpdatedAt:     now,
			RetentionDays: request.RetentionDays,
		}
		group.Go(func() error {
			return r.writeNote(groupCtx, note, now)
		})
	}
	if err := group.Wait(); err != nil {
		r.logError(opPublish, "linked_note_write_failed", err, zap.String("vault", request.Vault))
		return PublishResult{}, r.wrapWriteError(opPublish, "linked_note_write_failed", err)
	}

	primary := Note{
		Vault:         request.Vault,
		TitleSlug:     primarySlug,
		Hash:          primaryHash,
		Title:         request.Title,
		Content:       request.Content,
		UpdatedAt:     now,
		LinkedNotes:   links,
		RetentionDays: request.RetentionDays,
	}
	if err := r.writeNote(ctx, primary, now); err != nil {
		r.logError(opPublish, "note_write_failed", err,
			zap.String("vault", request.Vault),
			zap.String("title_slug", primarySlug))
		return PublishResult{}, r.wrapWriteError(opPublish, "note_write_failed", err)
	}

	// Entries are prepended in order, so the primary note goes last to end
	// up at the front of the index.
	entries := make([]IndexEntry, 0, len(links)+1)
	for position, linked := range request.LinkedNotes {
		entries = append(entries, IndexEntry{
			TitleSlug: links[position].TitleSlug,
			Hash:      links[position].Hash,
			Title:     linked.Title,
			CreatedAt: now,
		})
	}
	entries = append(entries, IndexEntry{
		TitleSlug: primarySlug,
		Hash:      primaryHash,
		Title:     request.Title,
		CreatedAt: now,
	})
	if err := r.registerInIndex(ctx, request.Vault, entries); err != nil {
		r.logError(opPublish, "index_update_failed", err, zap.String("vault", request.Vault))
		return PublishResult{}, newRepositoryError(opPublish, "index_update_failed", err)
	}

	return PublishResult{
		URL:       r.baseURL + identity.ViewPath(request.Vault, primarySlug, primaryHash),
		TitleSlug: primarySlug,
		Hash:      primaryHash,
	}, nil
}

// writeNote persists one note record, preserving CreatedAt from any record
// already stored at the target key. A stored record owned by a different
// (vault, title) pair is a truncated-hash collision and rejects the write.
func (r *Repository) writeNote(ctx context.Context, note Note, now time.Time) error {
	key := identity.NoteKey(note.TitleSlug, note.Hash)

	note.CreatedAt = now
	existing, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		stored, decodeErr := DecodeNote(existing.Data)
		if decodeErr == nil {
			if stored.Vault != note.Vault || stored.Title != note.Title {
				return fmt.Errorf("%w: key %s held by %s/%s", ErrHashCollision, key, stored.Vault, stored.TitleSlug)
			}
			if !stored.CreatedAt.IsZero() {
				note.CreatedAt = stored.CreatedAt
			}
		}
	case errors.Is(err, objstore.ErrNotFound):
		// First publish of this identity.
	default:
		return err
	}

	data, err := EncodeNote(note)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, key, objstore.Object{Data: data, ContentType: "application/json"})
}

func (r *Repository) wrapWriteError(operation, reason string, err error) error {
	if errors.Is(err, ErrHashCollision) {
		return newRepositoryError(operation, "hash_collision", err)
	}
	return newRepositoryError(operation, reason, err)
}

// List returns the vault's index, newest first. A vault with no index yet
// yields an empty list, never an error.
func (r *Repository) List(ctx context.Context, vault string) ([]IndexEntry, error) {
	obj, err := r.store.Get(ctx, identity.IndexKey(vault))
	if errors.Is(err, objstore.ErrNotFound) {
		return []IndexEntry{}, nil
	}
	if err != nil {
		r.logError(opList, "index_read_failed", err, zap.String("vault", vault))
		return nil, newRepositoryError(opList, "index_read_failed", err)
	}

	entries, err := decodeIndex(obj.Data)
	if err != nil {
		r.logError(opList, "index_decode_failed", err, zap.String("vault", vault))
		return nil, newRepositoryError(opList, "index_decode_failed", err)
	}
	return entries, nil
}

// Get loads one note by its storage identity. The caller is responsible for
// comparing the note's vault against the requesting URL; a mismatch must be
// treated as not-found to avoid leaking existence across vaults.
func (r *Repository) Get(ctx context.Context, titleSlug, hash string) (Note, error) {
	obj, err := r.store.Get(ctx, identity.NoteKey(titleSlug, hash))
	if errors.Is(err, objstore.ErrNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		r.logError(opGet, "note_read_failed", err, zap.String("title_slug", titleSlug))
		return Note{}, newRepositoryError(opGet, "note_read_failed", err)
	}

	note, err := DecodeNote(obj.Data)
	if err != nil {
		r.logError(opGet, "note_decode_failed", err, zap.String("title_slug", titleSlug))
		return Note{}, newRepositoryError(opGet, "note_decode_failed", err)
	}
	return note, nil
}

// Delete removes a note record and its index entry. Deleting a note that
// does not exist is a success.
func (r *Repository) Delete(ctx context.Context, vault, titleSlug, hash string) error {
	if err := r.store.Delete(ctx, identity.NoteKey(titleSlug, hash)); err != nil {
		r.logError(opDelete, "note_delete_failed", err,
			zap.String("vault", vault),
			zap.String("title_slug", titleSlug))
		return newRepositoryError(opDelete, "note_delete_failed", err)
	}
	return r.RemoveIndexEntry(ctx, vault, titleSlug, hash)
}

// RemoveIndexEntry drops one entry from a vault's index. Used by Delete and
// by the retention sweeper, which deletes the note object itself separately.
func (r *Repository) RemoveIndexEntry(ctx context.Context, vault, titleSlug, hash string) error {
	mu := r.vaultLock(vault)
	mu.Lock()
	defer mu.Unlock()

	entries, err := r.List(ctx, vault)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, entry := range entries {
		if entry.TitleSlug == titleSlug && entry.Hash == hash {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == len(entries) {
		return nil
	}
	if err := r.writeIndex(ctx, vault, kept); err != nil {
		r.logError(opDelete, "index_update_failed", err, zap.String("vault", vault))
		return newRepositoryError(opDelete, "index_update_failed", err)
	}
	return nil
}

// registerInIndex applies the remove-then-prepend discipline for each newly
// written note so updates move to the front without duplicating entries.
func (r *Repository) registerInIndex(ctx context.Context, vault string, fresh []IndexEntry) error {
	mu := r.vaultLock(vault)
	mu.Lock()
	defer mu.Unlock()

	entries, err := r.List(ctx, vault)
	if err != nil {
		return err
	}

	for _, entry := range fresh {
		kept := make([]IndexEntry, 0, len(entries))
		for _, existing := range entries {
			if existing.TitleSlug == entry.TitleSlug && existing.Hash == entry.Hash {
				// Preserve the original creation timestamp on re-publish.
				if !existing.CreatedAt.IsZero() {
					entry.CreatedAt = existing.CreatedAt
				}
				continue
			}
			kept = append(kept, existing)
		}
		entries = append([]IndexEntry{entry}, kept...)
	}

	return r.writeIndex(ctx, vault, entries)
}

func (r *Repository) writeIndex(ctx context.Context, vault string, entries []IndexEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, identity.IndexKey(vault), objstore.Object{
		Data:        data,
		ContentType: "application/json",
	})
}

func (r *Repository) vaultLock(vault string) *sync.Mutex {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	mu, ok := r.vaultMu[vault]
	if !ok {
		mu = &sync.Mutex{}
		r.vaultMu[vault] = mu
	}
	return mu
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("note repository error", attrs...)
}
