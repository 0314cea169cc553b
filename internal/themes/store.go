// Package themes stores per-vault light/dark theme records with a short
// in-process read cache on the public view path.
package themes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/permashare/backend/internal/identity"
	"github.com/permashare/backend/internal/objstore"
)

// cacheTTL bounds staleness after a theme write from another process
// instance; writes through this instance invalidate immediately.
const cacheTTL = 5 * time.Minute

// Mode selects one half of a dual theme.
type Mode string

const (
	ModeLight Mode = "light"
	ModeDark  Mode = "dark"
)

// ParseMode validates a raw mode string.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeLight):
		return ModeLight, nil
	case string(ModeDark):
		return ModeDark, nil
	default:
		return "", fmt.Errorf("themes: unknown mode %q", raw)
	}
}

// Settings is the fixed set of colors and sizes a vault can override.
type Settings struct {
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	AccentColor     string `json:"accentColor"`
	CodeBackground  string `json:"codeBackground"`
	FontSize        string `json:"fontSize"`
}

// DualTheme is the stored per-vault record. Either mode may be absent; a
// write to one mode never clobbers the other.
type DualTheme struct {
	Light     *Settings `json:"light,omitempty"`
	Dark      *Settings `json:"dark,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	errMissingStore = errors.New("object store is required")
	noOpLogger      = zap.NewNop()
)

const (
	opStoreNew = "themes.store.new"
	opGet      = "themes.get"
	opSet      = "themes.set"
)

// StoreError wraps a failed theme operation with a dotted code.
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
	Store  objstore.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

type cacheEntry struct {
	theme  *DualTheme
	expiry time.Time
}

// Store reads and merges theme records. The cache holds (value, expiry) per
// vault with lazy expiry checked on read.
type Store struct {
	store  objstore.Store
	clock  func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewStore validates the configuration and builds a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Store == nil {
		return nil, newStoreError(opStoreNew, "missing_store", errMissingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		store:  cfg.Store,
		clock:  clock,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// Get returns the vault's theme record, or nil when none was ever set.
// Absence is normal and callers fall back to built-in defaults.
func (s *Store) Get(ctx context.Context, vault string) (*DualTheme, error) {
	now := s.clock()

	s.mu.Lock()
	if entry, ok := s.cache[vault]; ok && now.Before(entry.expiry) {
		theme := entry.theme
		s.mu.Unlock()
		return theme, nil
	}
	s.mu.Unlock()

	obj, err := s.store.Get(ctx, identity.ThemeKey(vault))
	if errors.Is(err, objstore.ErrNotFound) {
		s.cachePut(vault, nil, now)
		return nil, nil
	}
	if err != nil {
		s.logger.Error("theme read failed",
			zap.String("operation", opGet),
			zap.String("vault", vault),
			zap.Error(err))
		return nil, newStoreError(opGet, "read_failed", err)
	}

	var theme DualTheme
	if err := json.Unmarshal(obj.Data, &theme); err != nil {
		// A corrupt record degrades to defaults rather than failing views.
		s.logger.Warn("theme record corrupt",
			zap.String("vault", vault),
			zap.Error(err))
		s.cachePut(vault, nil, now)
		return nil, nil
	}

	s.cachePut(vault, &theme, now)
	return &theme, nil
}

// Set merges the given mode's settings into the vault's record, stamps
// UpdatedAt, writes it back, and invalidates the cache entry.
func (s *Store) Set(ctx context.Context, vault string, mode Mode, settings Settings) error {
	current, err := s.load(ctx, vault)
	if err != nil {
		s.logger.Error("theme read failed",
			zap.String("operation", opSet),
			zap.String("vault", vault),
			zap.Error(err))
		return newStoreError(opSet, "read_failed", err)
	}

	switch mode {
	case ModeDark:
		current.Dark = &settings
	default:
		current.Light = &settings
	}
	current.UpdatedAt = s.clock().UTC()

	data, err := json.Marshal(current)
	if err != nil {
		return newStoreError(opSet, "encode_failed", err)
	}
	if err := s.store.Put(ctx, identity.ThemeKey(vault), objstore.Object{
		Data:        data,
		ContentType: "application/json",
	}); err != nil {
		s.logger.Error("theme write failed",
			zap.String("operation", opSet),
			zap.String("vault", vault),
			zap.Error(err))
		return newStoreError(opSet, "write_failed", err)
	}

	s.mu.Lock()
	delete(s.cache, vault)
	s.mu.Unlock()
	return nil
}

// load reads the stored record bypassing the cache, returning an empty
// record when none exists.
func (s *Store) load(ctx context.Context, vault string) (DualTheme, error) {
	obj, err := s.store.Get(ctx, identity.ThemeKey(vault))
	if errors.Is(err, objstore.ErrNotFound) {
		return DualTheme{}, nil
	}
	if err != nil {
		return DualTheme{}, err
	}
	var theme DualTheme
	if err := json.Unmarshal(obj.Data, &theme); err != nil {
		return DualTheme{}, nil
	}
	return theme, nil
}

func (s *Store) cachePut(vault string, theme *DualTheme, now time.Time) {
	s.mu.Lock()
	s.cache[vault] = cacheEntry{theme: theme, expiry: now.Add(cacheTTL)}
	s.mu.Unlock()
}
