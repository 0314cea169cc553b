// Package retention implements the scheduled expiry sweep over stored notes.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/permashare/backend/internal/images"
	"github.com/permashare/backend/internal/notes"
	"github.com/permashare/backend/internal/objstore"
)

const notesPrefix = "notes/"

// listPageSize bounds one page of the notes scan.
const listPageSize = 500

var (
	errMissingStore      = errors.New("object store is required")
	errMissingRepository = errors.New("note repository is required")
	errMissingImages     = errors.New("image store is required")
	noOpLogger           = zap.NewNop()
)

// SweeperConfig carries the dependencies for a Sweeper.
type SweeperConfig struct {
	Store      objstore.Store
	Repository *notes.Repository
	Images     *images.Store
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Sweeper scans every stored note and removes those past their configured
// expiry, along with their images and index entries. Notes with retention 0
// are never inspected for deletion.
type Sweeper struct {
	store      objstore.Store
	repository *notes.Repository
	images     *images.Store
	clock      func() time.Time
	logger     *zap.Logger
}

// NewSweeper validates the configuration and builds a Sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("retention.sweeper.new: %w", errMissingStore)
	}
	if cfg.Repository == nil {
		return nil, fmt.Errorf("retention.sweeper.new: %w", errMissingRepository)
	}
	if cfg.Images == nil {
		return nil, fmt.Errorf("retention.sweeper.new: %w", errMissingImages)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Sweeper{
		store:      cfg.Store,
		repository: cfg.Repository,
		images:     cfg.Images,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Result summarizes one sweep run.
type Result struct {
	Scanned int
	Expired int
	Failed  int
}

// Sweep pages through every note object and deletes the expired ones. A
// failure on one note is logged and counted, never allowed to abort the run;
// only a failure of the listing itself stops the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.clock().UTC()
	result := Result{}
	cursor := ""

	for {
		page, err := s.store.List(ctx, notesPrefix, cursor, listPageSize)
		if err != nil {
			s.logger.Error("retention scan failed", zap.Error(err))
			return result, fmt.Errorf("retention.sweep.list_failed: %w", err)
		}

		for _, key := range page.Keys {
			result.Scanned++
			expired, err := s.sweepOne(ctx, key, now)
			if err != nil {
				result.Failed++
				s.logger.Error("retention delete failed",
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			if expired {
				result.Expired++
			}
		}

		if !page.Truncated {
			break
		}
		cursor = page.NextCursor
	}

	s.logger.Info("retention sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, key string, now time.Time) (bool, error) {
	obj, err := s.store.Get(ctx, key)
	if errors.Is(err, objstore.ErrNotFound) {
		// Deleted between listing and read; nothing to do.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	note, err := notes.DecodeNote(obj.Data)
	if err != nil {
		// An undecodable record cannot carry a retention policy; leave it.
		s.logger.Warn("skipping undecodable note record", zap.String("key", key))
		return false, nil
	}

	expiry, expires := note.ExpiresAt()
	if !expires || !now.After(expiry) {
		return false, nil
	}

	// The note object, its images, and its index entry go concurrently.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.store.Delete(groupCtx, key)
	})
	group.Go(func() error {
		return s.images.DeletePrefix(groupCtx, note.Hash)
	})
	group.Go(func() error {
		return s.repository.RemoveIndexEntry(groupCtx, note.Vault, note.TitleSlug, note.Hash)
	})
	if err := group.Wait(); err != nil {
		return false, err
	}

	s.logger.Info("expired note removed",
		zap.String("vault", note.Vault),
		zap.String("title_slug", note.TitleSlug),
		zap.String("hash", note.Hash),
		zap.Time("expired_at", expiry))
	return true, nil
}
