// Package repo: this file provides the asset index, a SQLite table mapping
// stored names to their owning chat so uploads can be listed and collected
// when the chat is deleted.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/chat-assistant-backend/internal/domain"
)

// CreateAsset inserts an index row. CreatedAt defaults to now (UTC).
func CreateAsset(ctx context.Context, db *gorm.DB, a *domain.StoredAsset) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(a).Error
}

// GetAsset returns the index row for a stored name, or ErrNotFound.
func GetAsset(ctx context.Context, db *gorm.DB, storedName string) (*domain.StoredAsset, error) {
	var a domain.StoredAsset
	err := db.WithContext(ctx).First(&a, "stored_name = ?", storedName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssetsByChat returns the assets uploaded to a chat, oldest first.
func ListAssetsByChat(ctx context.Context, db *gorm.DB, chatID string) ([]domain.StoredAsset, error) {
	var out []domain.StoredAsset
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, stored_name ASC").
		Find(&out).Error
	return out, err
}

// DeleteAsset removes one index row. Missing rows are ignored.
func DeleteAsset(ctx context.Context, db *gorm.DB, storedName string) error {
	return db.WithContext(ctx).Where("stored_name = ?", storedName).Delete(&domain.StoredAsset{}).Error
}

// DeleteAssetsByChat removes every index row of a chat and reports how many
// were deleted.
func DeleteAssetsByChat(ctx context.Context, db *gorm.DB, chatID string) (int64, error) {
	res := db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&domain.StoredAsset{})
	return res.RowsAffected, res.Error
}
