// Package repo implements the relational persistence layer for domain
// entities, backed by GORM. This file provides repository functions for the
// Comment model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

// CreateComment inserts a new comment row under a review.
func CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) (*domain.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns all comments on a review in insertion order
// (CreatedAt ASC, ID ASC as the deterministic tiebreak).
func ListComments(ctx context.Context, db *gorm.DB, reviewID string) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("review_id = ?", reviewID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountComments returns the number of comments on a review.
func CountComments(ctx context.Context, db *gorm.DB, reviewID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("review_id = ?", reviewID).
		Count(&total).Error
	return total, err
}

// GetComment fetches a comment by ID, or ErrNotFound.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteComment removes a single comment row and returns rows affected.
func DeleteComment(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Comment{})
	return res.RowsAffected, res.Error
}

// DeleteCommentsForReview removes every comment referencing reviewID and
// returns the number of rows deleted. Used by the review cascade-delete path
// before the review row itself is removed.
func DeleteCommentsForReview(ctx context.Context, db *gorm.DB, reviewID string) (int64, error) {
	res := db.WithContext(ctx).Where("review_id = ?", reviewID).Delete(&domain.Comment{})
	return res.RowsAffected, res.Error
}
