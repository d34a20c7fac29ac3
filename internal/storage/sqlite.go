package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"glimpse/internal/config"
)

// Blob is one persisted key/value entry.
type Blob struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName overrides the gorm table name.
func (Blob) TableName() string {
	return "blobs"
}

// SQLiteStore is a Store backed by a sqlite database in WAL mode.
type SQLiteStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if necessary) the sqlite database at the
// configured path and migrates the blobs table.
func NewSQLiteStore(cfg *config.Config, log *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.GetDatabasePath()), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", cfg.GetDatabasePath())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(cfg.GetMaxIdleConns())

	if err := db.AutoMigrate(&Blob{}); err != nil {
		return nil, fmt.Errorf("failed to migrate blobs table: %w", err)
	}

	log.Info("Opened sqlite store", slog.String("path", cfg.GetDatabasePath()))
	return &SQLiteStore{db: db, logger: log}, nil
}

// Get returns the value for key and whether it exists.
func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	var blob Blob
	err := s.db.First(&blob, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return []byte(blob.Value), true, nil
}

// Set writes the value for key, overwriting any previous value.
func (s *SQLiteStore) Set(key string, value []byte) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO blobs (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = ?,
			updated_at = ?
	`
	if err := s.db.Exec(query, key, string(value), now, string(value), now).Error; err != nil {
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLiteStore) Delete(key string) error {
	if err := s.db.Delete(&Blob{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	return nil
}

// Keys returns every key starting with prefix.
func (s *SQLiteStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.Model(&Blob{}).
		Where("key LIKE ?", prefix+"%").
		Order("key ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list blob keys: %w", err)
	}
	return keys, nil
}

// Reset removes every key.
func (s *SQLiteStore) Reset() error {
	if err := s.db.Exec("DELETE FROM blobs").Error; err != nil {
		return fmt.Errorf("failed to reset blobs: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
