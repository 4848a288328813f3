// Package repo implements the relational persistence layer for domain
// entities, backed by GORM. This file provides repository functions for the
// Review model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a review is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is wrapped by services.ReviewService, which layers the
// remote-first/local-fallback strategy and permission checks on top.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateReview inserts a new Review row. The ID is a randomly generated UUID
// and CreatedAt is set to UTC. The caller is expected to have validated the
// rating range; the DB check constraint is the backstop.
func CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) (*domain.Review, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// CountReviews returns the total number of review rows.
func CountReviews(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Count(&total).Error
	return total, err
}

// ListReviewsPage returns a paginated slice of reviews ordered by creation
// time descending (most recent first), each with its comment count attached
// via a correlated subquery.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListReviewsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Review, error) {
	var out []domain.Review
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Select("reviews.*, (?) AS comments_count",
			db.Model(&domain.Comment{}).
				Select("COUNT(*)").
				Where("comments.review_id = reviews.id"),
		).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetReview fetches a single review by ID, or ErrNotFound if missing.
func GetReview(ctx context.Context, db *gorm.DB, id string) (*domain.Review, error) {
	var r domain.Review
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateReview applies a column patch to a review. If no rows are affected
// (review missing, or rejected by an authorization layer below), it returns
// ErrNotFound so the caller can surface the failure instead of masking it.
func UpdateReview(ctx context.Context, db *gorm.DB, id string, patch map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("id = ?", id).
		Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteReview removes a review row and returns the number of rows affected.
// A zero count with a nil error means the row was absent or an authorization
// layer silently rejected the delete; callers decide how to surface that.
func DeleteReview(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Review{})
	return res.RowsAffected, res.Error
}
