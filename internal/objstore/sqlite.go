package objstore

import (
	"context"
	"errors"
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storedObject struct {
	Key         string `gorm:"column:key;primaryKey;size:512;not null"`
	ContentType string `gorm:"column:content_type;size:190;not null;default:''"`
	Data        []byte `gorm:"column:data;not null"`
}

func (storedObject) TableName() string {
	return "objects"
}

// SQLiteStore persists objects in a single-table SQLite database. It serves
// local and development deployments where no object-storage bucket exists.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite establishes a SQLite connection and migrates the object table.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&storedObject{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("sqlite object store initialized", zap.String("path", path))
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Object, error) {
	var record storedObject
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, err
	}
	return Object{Data: record.Data, ContentType: record.ContentType}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, obj Object) error {
	record := storedObject{Key: key, ContentType: obj.ContentType, Data: obj.Data}
	return s.db.WithContext(ctx).Save(&record).Error
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&storedObject{}).Error
}

// List implements Store using keyset pagination on the primary key.
func (s *SQLiteStore) List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error) {
	query := s.db.WithContext(ctx).Model(&storedObject{}).
		Where("key LIKE ?", prefix+"%").
		Where("key > ?", cursor).
		Order("key ASC")
	if limit > 0 {
		query = query.Limit(limit + 1)
	}

	var keys []string
	if err := query.Pluck("key", &keys).Error; err != nil {
		return ListPage{}, err
	}

	page := ListPage{}
	if limit > 0 && len(keys) > limit {
		page.Keys = keys[:limit]
		page.NextCursor = keys[limit-1]
		page.Truncated = true
	} else {
		page.Keys = keys
	}
	return page, nil
}
