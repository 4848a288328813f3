// Package repo implements the relational persistence layer for domain
// entities, backed by GORM. This file provides repository functions for the
// ChatRoom model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

// CreateRoom inserts a new chat room row. LastActivity defaults to now so a
// freshly created room never qualifies for cleanup.
func CreateRoom(ctx context.Context, db *gorm.DB, r *domain.ChatRoom) (*domain.ChatRoom, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.LastActivity.IsZero() {
		r.LastActivity = now
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ListRooms returns all rooms ordered by last activity descending (most
// recently active first).
func ListRooms(ctx context.Context, db *gorm.DB) ([]domain.ChatRoom, error) {
	var out []domain.ChatRoom
	err := db.WithContext(ctx).
		Order("last_activity desc").
		Find(&out).Error
	return out, err
}

// GetRoom fetches a room by ID, or ErrNotFound.
func GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.ChatRoom, error) {
	var r domain.ChatRoom
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// TouchRoom bumps a room's last activity timestamp. Returns ErrNotFound when
// the room does not exist.
func TouchRoom(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatRoom{}).
		Where("id = ?", id).
		Update("last_activity", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdjustActiveUsers atomically adds delta to a room's presence counter,
// flooring at zero, and bumps last activity in the same statement. A single
// UPDATE keeps concurrent join/leave calls from under- or over-counting the
// way a read-modify-write sequence would.
func AdjustActiveUsers(ctx context.Context, db *gorm.DB, id string, delta int) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatRoom{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"active_users":  gorm.Expr("MAX(0, active_users + ?)", delta),
			"last_activity": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListInactiveRooms returns rooms whose last activity precedes cutoff.
// Presence filtering is left to the caller so the query needs no composite
// index.
func ListInactiveRooms(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.ChatRoom, error) {
	var out []domain.ChatRoom
	err := db.WithContext(ctx).
		Where("last_activity < ?", cutoff.UTC()).
		Find(&out).Error
	return out, err
}

// DeleteRoom removes a room row and returns rows affected. Callers cascade
// message deletion first via DeleteMessagesForRoom.
func DeleteRoom(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.ChatRoom{})
	return res.RowsAffected, res.Error
}
