// Package repo implements the persistence layer of the assistant backend.
//
// Chat records live as one JSON document per chat in a directory (see
// FileChatStore). Uploaded files live in an asset directory (AssetFiles) and
// are indexed, together with idempotency records, in a small SQLite database
// accessed through GORM. This file opens that database and migrates it.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
)

// sqlitePragmas are applied to every connection opened by OpenSQLite.
// WAL lets asset lookups proceed while an upload batch is being indexed.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA busy_timeout=5000;",
}

// OpenSQLite opens (or creates) the index database at path, creating the
// parent directory when needed, applies sqlitePragmas, tunes the pool and
// installs the OpenTelemetry tracing plugin. In-memory and "file:" DSNs are
// passed through untouched.
func OpenSQLite(path string) (*gorm.DB, error) {
	if isFilePath(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s %w", strings.TrimSuffix(p, ";"), err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	// Spans for every query, parented to the request span via WithContext.
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}
	return db, nil
}

func isFilePath(path string) bool {
	return path != "" && path != ":memory:" && !strings.HasPrefix(path, "file:")
}

// AutoMigrate creates or updates the asset index and idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.StoredAsset{},
		&domain.Idempotency{},
	)
}
