package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type storeRow struct {
	Name      string    `gorm:"column:name;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (storeRow) TableName() string { return "cache_stores" }

type entryRow struct {
	StoreName  string    `gorm:"column:store_name;primaryKey"`
	RequestKey string    `gorm:"column:request_key;primaryKey"`
	Payload    []byte    `gorm:"column:payload"`
	StoredAt   time.Time `gorm:"column:stored_at"`
}

func (entryRow) TableName() string { return "cache_entries" }

// OpenSQLite opens (creating if needed) the sqlite database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		return nil, errors.New("sqlite path is required")
	}
	if candidate != ":memory:" && !strings.HasPrefix(strings.ToLower(candidate), "file:") {
		if dir := filepath.Dir(candidate); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}
	db, err := gorm.Open(gormsqlite.Open(candidate), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return db, nil
}

// SQLiteStorage persists named stores in two tables so the cache survives
// restarts of the edge.
type SQLiteStorage struct {
	db             *gorm.DB
	codec          Codec
	maxObjectBytes int64
}

func NewSQLiteStorage(db *gorm.DB, codec Codec, maxObjectBytes int64) (*SQLiteStorage, error) {
	if db == nil {
		return nil, errors.New("sqlite storage: nil db")
	}
	if codec == nil {
		codec = Msgpack{}
	}
	if err := db.AutoMigrate(&storeRow{}, &entryRow{}); err != nil {
		return nil, fmt.Errorf("migrate cache tables: %w", err)
	}
	return &SQLiteStorage{db: db, codec: codec, maxObjectBytes: maxObjectBytes}, nil
}

func (s *SQLiteStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	row := storeRow{Name: name, CreatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}
	return &SQLiteStore{storage: s, name: name}, nil
}

func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&storeRow{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("store_name = ?", name).Delete(&entryRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("name = ?", name).Delete(&storeRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete cache store: %w", err)
	}
	return deleted, nil
}

func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&storeRow{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type SQLiteStore struct {
	storage *SQLiteStorage
	name    string
}

func (s *SQLiteStore) Name() string { return s.name }

func (s *SQLiteStore) Close() error { return nil }

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var row entryRow
	err := s.storage.db.WithContext(ctx).
		Where("store_name = ? AND request_key = ?", s.name, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := s.storage.codec.Unmarshal(row.Payload)
	if err != nil {
		_ = s.Delete(ctx, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, entry Entry) error {
	if err := checkSize(s.storage.maxObjectBytes, entry); err != nil {
		return err
	}
	raw, err := s.storage.codec.Marshal(entry)
	if err != nil {
		return err
	}
	row := entryRow{StoreName: s.name, RequestKey: key, Payload: raw, StoredAt: entry.StoredAt}
	return s.storage.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_name"}, {Name: "request_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"payload":   row.Payload,
			"stored_at": row.StoredAt,
		}),
	}).Create(&row).Error
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.storage.db.WithContext(ctx).
		Where("store_name = ? AND request_key = ?", s.name, key).
		Delete(&entryRow{}).Error
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.storage.db.WithContext(ctx).Model(&entryRow{}).
		Where("store_name = ?", s.name).
		Order("request_key").
		Pluck("request_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
