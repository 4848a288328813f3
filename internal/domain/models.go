// Package domain defines the persistence models for reviews, comments, chat
// rooms, and chat messages. These types are mapped with GORM for the remote
// (relational) tier and serialized as JSON collections by the device-local
// fallback tier.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Source tags where a record was read from or written to. It is never
// persisted remotely; services attach it so callers can tell durable data
// from device-only data.
type Source string

const (
	// SourceRemote marks records held by the remote backend.
	SourceRemote Source = "remote"
	// SourceLocal marks records held only in device-local storage.
	SourceLocal Source = "local"
)

// Review represents a user-authored review with a 1-5 rating and a category.
// Reviews created while the remote backend is unreachable carry a "local_"
// prefixed ID and embed their comments directly.
//
// Fields:
//   - ID: stable UUID primary key (char(36)); "local_"-prefixed for
//     device-local records.
//   - Title / Author / Content / Category: review payload.
//   - Rating: integer in [1,5], enforced by DB constraint.
//   - Date: display date (YYYY-MM-DD), assigned at creation.
//   - UserID: identifier of the author; optional for legacy rows.
//   - AvatarURL: optional author avatar.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Review struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null"`
	Author    string         `json:"author"     gorm:"type:varchar(255);not null"`
	Content   string         `json:"content"    gorm:"type:text;not null"`
	Rating    int            `json:"rating"     gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Category  string         `json:"category"   gorm:"type:varchar(64);not null;default:'general'"`
	Date      string         `json:"date"       gorm:"type:varchar(10);not null"`
	UserID    string         `json:"user_id,omitempty"    gorm:"type:varchar(64);index"`
	AvatarURL string         `json:"avatar_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// CommentsCount is computed at read time for remote reviews.
	CommentsCount int64 `json:"comments_count" gorm:"-"`

	// Comments is populated for device-local reviews (embedded storage) and
	// for single-review reads that merge locally held comments.
	Comments []Comment `json:"comments,omitempty" gorm:"-"`

	// HasLocalComments reports that at least one attached comment lives only
	// on this device.
	HasLocalComments bool `json:"has_local_comments,omitempty" gorm:"-"`

	// Source is the provenance tag set by the service layer.
	Source Source `json:"source,omitempty" gorm:"-"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// Comment is a single comment on a review. Comments are cascade-deleted when
// their parent review is removed. Comments written while the remote backend
// is unreachable carry a "comment_" prefixed ID and live either embedded in a
// local review or in a device-local side table keyed by review ID.
type Comment struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	ReviewID  string         `json:"review_id"  gorm:"type:char(36);not null;index:idx_review_comments,priority:1"`
	Author    string         `json:"author"     gorm:"type:varchar(255);not null"`
	Content   string         `json:"content"    gorm:"type:text;not null"`
	UserID    string         `json:"user_id,omitempty"    gorm:"type:varchar(64);index"`
	AvatarURL string         `json:"avatar_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_review_comments,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Review is the parent. Comments are cascade-deleted with their review.
	Review *Review `json:"-" gorm:"foreignKey:ReviewID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Source is the provenance tag set by the service layer.
	Source Source `json:"source,omitempty" gorm:"-"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// ChatRoom is an ad-hoc conversation room. Rooms idle for longer than the
// configured threshold with no active users are garbage-collected.
//
// ActiveUsers is a best-effort presence counter; the storage layer floors it
// at zero on every adjustment.
type ChatRoom struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	Name         string         `json:"name"          gorm:"type:varchar(255);not null"`
	Description  string         `json:"description"   gorm:"type:text"`
	CreatedBy    string         `json:"created_by"    gorm:"type:varchar(255)"`
	ActiveUsers  int            `json:"active_users"  gorm:"not null;default:0;check:active_users >= 0"`
	LastActivity time.Time      `json:"last_activity" gorm:"not null;index"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`

	// Source is the provenance tag set by the service layer.
	Source Source `json:"source,omitempty" gorm:"-"`
}

// TableName returns the database table name for ChatRoom.
func (ChatRoom) TableName() string { return "chat_rooms" }

// ChatMessage is a single message within a chat room. Messages are
// append-only; there is no edit path, and deletion happens only as a cascade
// of room deletion.
type ChatMessage struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	RoomID    string         `json:"room_id"    gorm:"type:char(36);not null;index:idx_room_msgs,priority:1"`
	Author    string         `json:"author"     gorm:"type:varchar(255);not null"`
	Content   string         `json:"content"    gorm:"type:text;not null"`
	UserID    string         `json:"user_id,omitempty"    gorm:"type:varchar(64)"`
	AvatarURL string         `json:"avatar_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_room_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Room is the parent. Messages are cascade-deleted with their room.
	Room *ChatRoom `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Source is the provenance tag set by the service layer.
	Source Source `json:"source,omitempty" gorm:"-"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }
