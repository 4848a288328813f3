// Package repo implements the relational persistence layer for domain
// entities, backed by GORM. This file provides repository functions for the
// ChatMessage model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

// CreateMessage inserts a new chat message row.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns messages for a room ordered deterministically
// (CreatedAt ASC, ID ASC). A positive limit keeps only the newest rows while
// preserving ascending display order.
func ListMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ListMessagesBefore returns up to limit messages older than the message
// identified by beforeID, in ascending order — the history pagination cursor.
// An unknown beforeID behaves as if no cursor was given.
func ListMessagesBefore(ctx context.Context, db *gorm.DB, roomID, beforeID string, limit int) ([]domain.ChatMessage, error) {
	q := db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeID != "" {
		var cursor domain.ChatMessage
		if err := db.WithContext(ctx).Select("created_at").Where("id = ?", beforeID).First(&cursor).Error; err == nil {
			q = q.Where("created_at < ?", cursor.CreatedAt)
		}
	}
	var desc []domain.ChatMessage
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&desc).Error
	if err != nil {
		return nil, err
	}
	// Newest-first fetch, oldest-first display.
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, roomID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM chat_messages WHERE room_id = ? AND deleted_at IS NULL", roomID).
		Scan(&total).Error
	return total, err
}

// DeleteMessagesForRoom removes every message in a room and returns the
// number of rows deleted. Used by the room cascade-delete and cleanup paths.
func DeleteMessagesForRoom(ctx context.Context, db *gorm.DB, roomID string) (int64, error) {
	res := db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&domain.ChatMessage{})
	return res.RowsAffected, res.Error
}
