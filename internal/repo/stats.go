// Package repo implements the relational persistence layer for domain
// entities, backed by GORM. This file provides small aggregate/statistics
// queries used primarily for conditional responses (e.g., ETag generation)
// in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

// ReviewsStats returns aggregate metadata for the reviews table: the total
// number of rows and the maximum UpdatedAt timestamp among them. When there
// are no reviews, the returned count is 0 and maxUpdatedAt is nil.
func ReviewsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Review{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// RoomsStats returns the room count and the greatest LastActivity timestamp,
// used for conditional room-list responses.
func RoomsStats(ctx context.Context, db *gorm.DB) (count int64, maxActivity *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChatRoom{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		LastActivity time.Time
	}
	if err = q.Select("last_activity").Order("last_activity DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.LastActivity, nil
}
