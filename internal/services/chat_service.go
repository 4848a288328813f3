package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/authz"
	"github.com/reviewhub/go-review-backend/internal/domain"
	"github.com/reviewhub/go-review-backend/internal/identity"
	"github.com/reviewhub/go-review-backend/internal/localstore"
	"github.com/reviewhub/go-review-backend/internal/realtime"
)

// ChatBackend abstracts the remote persistence tier for rooms and messages,
// plus its change feed. The production implementation wraps the repo package
// and publishes through the in-process hub after each successful write.
type ChatBackend interface {
	CreateRoom(ctx context.Context, db *gorm.DB, r *domain.ChatRoom) (*domain.ChatRoom, error)
	ListRooms(ctx context.Context, db *gorm.DB) ([]domain.ChatRoom, error)
	GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.ChatRoom, error)
	TouchRoom(ctx context.Context, db *gorm.DB, id string) error
	AdjustActiveUsers(ctx context.Context, db *gorm.DB, id string, delta int) error
	ListInactiveRooms(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.ChatRoom, error)
	DeleteRoom(ctx context.Context, db *gorm.DB, id string) (int64, error)

	CreateMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) (*domain.ChatMessage, error)
	ListMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error)
	ListMessagesBefore(ctx context.Context, db *gorm.DB, roomID, beforeID string, limit int) ([]domain.ChatMessage, error)
	DeleteMessagesForRoom(ctx context.Context, db *gorm.DB, roomID string) (int64, error)

	SubscribeRooms(fn func()) realtime.Unsubscribe
	SubscribeMessages(roomID string, fn func(domain.ChatMessage)) realtime.Unsubscribe
}

// ChatService orchestrates chat rooms, messages, presence, and the periodic
// cleanup of abandoned rooms across the two storage tiers.
type ChatService struct {
	DB      *gorm.DB
	Backend ChatBackend
	Local   *localstore.Store

	DemoAdminEnabled bool

	// RoomInactivity is how long a room may sit idle before cleanup may
	// remove it. Zero means 30 minutes.
	RoomInactivity time.Duration

	// CleanupInterval is the period of the cleanup ticker. Zero means
	// 5 minutes.
	CleanupInterval time.Duration

	// MessageLimit bounds live message snapshots. Zero means 100.
	MessageLimit int
}

const (
	defaultRoomInactivity  = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
	defaultMessageLimit    = 100
)

// CreateRoom creates a chat room, falling back to the device-local store when
// the backend is unreachable. A local room starts with one active user, the
// creator, since no other device can ever join it.
func (s *ChatService) CreateRoom(ctx context.Context, name, description, createdBy string) (*domain.ChatRoom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyRoomName
	}

	room := &domain.ChatRoom{
		Name:         name,
		Description:  description,
		CreatedBy:    createdBy,
		ActiveUsers:  0,
		LastActivity: time.Now().UTC(),
	}
	created, err := s.Backend.CreateRoom(ctx, s.DB, room)
	if err == nil {
		created.Source = domain.SourceRemote
		return created, nil
	}

	room.ID = localstore.NewLocalID()
	room.ActiveUsers = 1
	room.CreatedAt = time.Now().UTC()
	room.Source = domain.SourceLocal
	if !localstore.AppendOne(s.Local, localstore.NSChatRooms, *room) {
		return nil, ErrStorageUnavailable
	}
	return room, nil
}

// Rooms returns the merged room list, remote first then device-local, each
// tier sorted by recent activity.
func (s *ChatService) Rooms(ctx context.Context) ([]domain.ChatRoom, error) {
	out := []domain.ChatRoom{}
	remote, err := s.Backend.ListRooms(ctx, s.DB)
	if err == nil {
		for i := range remote {
			remote[i].Source = domain.SourceRemote
		}
		out = append(out, remote...)
	}
	out = append(out, s.localRooms()...)
	return out, nil
}

// GetRoom fetches a single room from the tier its identifier routes to.
func (s *ChatService) GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error) {
	if localstore.IsLocalID(id) {
		for _, r := range s.localRooms() {
			if r.ID == id {
				cp := r
				return &cp, nil
			}
		}
		return nil, ErrRoomNotFound
	}
	r, err := s.Backend.GetRoom(ctx, s.DB, id)
	if err != nil {
		return nil, ErrRoomNotFound
	}
	r.Source = domain.SourceRemote
	return r, nil
}

// SubscribeRooms delivers the merged room list immediately and again after
// every remote room change until the returned function is called.
func (s *ChatService) SubscribeRooms(ctx context.Context, fn func([]domain.ChatRoom)) realtime.Unsubscribe {
	deliver := func() {
		rooms, _ := s.Rooms(ctx)
		fn(rooms)
	}
	deliver()
	return s.Backend.SubscribeRooms(deliver)
}

// JoinRoom increments a room's presence counter and refreshes its activity
// timestamp. It reports whether presence was actually adjusted: joining a
// device-local room is a no-op since presence only means anything across
// devices.
func (s *ChatService) JoinRoom(ctx context.Context, id string) (bool, error) {
	if localstore.IsLocalID(id) {
		return false, nil
	}
	if err := s.Backend.AdjustActiveUsers(ctx, s.DB, id, 1); err != nil {
		return false, ErrRoomNotFound
	}
	return true, nil
}

// LeaveRoom decrements a room's presence counter. The counter never drops
// below zero; leaving twice is harmless. Device-local rooms are a no-op.
func (s *ChatService) LeaveRoom(ctx context.Context, id string) (bool, error) {
	if localstore.IsLocalID(id) {
		return false, nil
	}
	if err := s.Backend.AdjustActiveUsers(ctx, s.DB, id, -1); err != nil {
		return false, ErrRoomNotFound
	}
	return true, nil
}

// SendMessage appends a message to a room. Messages to device-local rooms go
// straight to the local store; messages to remote rooms fall back there when
// the backend write fails, so the sender still sees their own message.
func (s *ChatService) SendMessage(ctx context.Context, roomID string, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	if m == nil || strings.TrimSpace(m.Content) == "" {
		return nil, ErrEmptyMessage
	}
	m.RoomID = roomID

	if localstore.IsLocalID(roomID) {
		if !s.localRoomExists(roomID) {
			return nil, ErrRoomNotFound
		}
		return s.saveLocalMessage(m)
	}

	created, err := s.Backend.CreateMessage(ctx, s.DB, m)
	if err == nil {
		created.Source = domain.SourceRemote
		// Touch failure only delays cleanup; the message is already stored.
		_ = s.Backend.TouchRoom(ctx, s.DB, roomID)
		return created, nil
	}
	return s.saveLocalMessage(m)
}

// Messages returns room history oldest-first. With beforeID set it pages
// backwards from that message; device-local fallback messages are merged
// into the newest page only.
func (s *ChatService) Messages(ctx context.Context, roomID string, limit int, beforeID string) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = s.messageLimit()
	}
	if localstore.IsLocalID(roomID) {
		if !s.localRoomExists(roomID) {
			return nil, ErrRoomNotFound
		}
		msgs := s.localMessages(roomID)
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		return msgs, nil
	}

	if beforeID != "" {
		msgs, err := s.Backend.ListMessagesBefore(ctx, s.DB, roomID, beforeID, limit)
		if err != nil {
			return nil, ErrRoomNotFound
		}
		for i := range msgs {
			msgs[i].Source = domain.SourceRemote
		}
		return msgs, nil
	}
	return s.mergedMessages(ctx, roomID, limit), nil
}

// SubscribeMessages delivers the merged newest-page snapshot for a room
// immediately and again after every message stored to it, until the returned
// function is called. Device-local rooms get a single snapshot and a no-op
// unsubscribe; nothing else will ever write to them.
func (s *ChatService) SubscribeMessages(ctx context.Context, roomID string, fn func([]domain.ChatMessage)) realtime.Unsubscribe {
	limit := s.messageLimit()
	if localstore.IsLocalID(roomID) {
		fn(s.localMessages(roomID))
		return func() {}
	}
	deliver := func(domain.ChatMessage) {
		fn(s.mergedMessages(ctx, roomID, limit))
	}
	deliver(domain.ChatMessage{})
	return s.Backend.SubscribeMessages(roomID, deliver)
}

// DeleteRoom removes a room and its messages from the tier it lives in,
// after checking the acting identity against the room's creator.
func (s *ChatService) DeleteRoom(ctx context.Context, actor *identity.User, id string) error {
	if localstore.IsLocalID(id) {
		var target *domain.ChatRoom
		for _, r := range s.localRooms() {
			if r.ID == id {
				cp := r
				target = &cp
				break
			}
		}
		if target == nil {
			return ErrRoomNotFound
		}
		if !authz.CanModify(actor, s.DemoAdminEnabled, "", target.CreatedBy) {
			return ErrForbidden
		}
		localstore.RemoveWhere(s.Local, localstore.NSChatRooms, func(r domain.ChatRoom) bool {
			return r.ID == id
		})
		localstore.RemoveWhere(s.Local, localstore.NSChatMessages, func(m domain.ChatMessage) bool {
			return m.RoomID == id
		})
		return nil
	}

	room, err := s.Backend.GetRoom(ctx, s.DB, id)
	if err != nil {
		return ErrRoomNotFound
	}
	if !authz.CanModify(actor, s.DemoAdminEnabled, "", room.CreatedBy) {
		return ErrForbidden
	}
	if _, err := s.Backend.DeleteMessagesForRoom(ctx, s.DB, id); err != nil {
		return err
	}
	rows, err := s.Backend.DeleteRoom(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRoomNotFound
	}
	localstore.RemoveWhere(s.Local, localstore.NSChatMessages, func(m domain.ChatMessage) bool {
		return m.RoomID == id
	})
	return nil
}

// CleanupInactiveRooms deletes remote rooms that have been idle past the
// inactivity window and have nobody present. Messages go first so a failure
// midway never strands a room pointing at deleted history the other way
// around.
func (s *ChatService) CleanupInactiveRooms(ctx context.Context) (int, error) {
	window := s.RoomInactivity
	if window <= 0 {
		window = defaultRoomInactivity
	}
	cutoff := time.Now().UTC().Add(-window)

	stale, err := s.Backend.ListInactiveRooms(ctx, s.DB, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, room := range stale {
		if room.ActiveUsers > 0 {
			continue
		}
		if _, err := s.Backend.DeleteMessagesForRoom(ctx, s.DB, room.ID); err != nil {
			log.Warn().Err(err).Str("room_id", room.ID).Msg("cleanup: purge messages failed")
			continue
		}
		if _, err := s.Backend.DeleteRoom(ctx, s.DB, room.ID); err != nil {
			log.Warn().Err(err).Str("room_id", room.ID).Msg("cleanup: delete room failed")
			continue
		}
		removed++
	}
	return removed, nil
}

// RunCleanup runs an immediate cleanup pass and then one per interval until
// the context is canceled. Intended to run as a goroutine owned by main.
func (s *ChatService) RunCleanup(ctx context.Context) {
	interval := s.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	pass := func() {
		n, err := s.CleanupInactiveRooms(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("chat cleanup pass failed")
			return
		}
		if n > 0 {
			log.Info().Int("rooms_removed", n).Msg("chat cleanup pass")
		}
	}
	pass()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}

func (s *ChatService) messageLimit() int {
	if s.MessageLimit > 0 {
		return s.MessageLimit
	}
	return defaultMessageLimit
}

func (s *ChatService) saveLocalMessage(m *domain.ChatMessage) (*domain.ChatMessage, error) {
	m.ID = localstore.NewLocalID()
	m.CreatedAt = time.Now().UTC()
	m.Source = domain.SourceLocal
	if !localstore.AppendOne(s.Local, localstore.NSChatMessages, *m) {
		return nil, ErrStorageUnavailable
	}
	return m, nil
}

// mergedMessages joins the newest remote page with device-local fallback
// messages for the room, sorted oldest-first and truncated to the newest
// limit entries.
func (s *ChatService) mergedMessages(ctx context.Context, roomID string, limit int) []domain.ChatMessage {
	remote, err := s.Backend.ListMessages(ctx, s.DB, roomID, limit)
	if err != nil {
		remote = nil
	}
	for i := range remote {
		remote[i].Source = domain.SourceRemote
	}
	merged := append(remote, s.localMessages(roomID)...)
	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].CreatedAt.Before(merged[b].CreatedAt)
	})
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

func (s *ChatService) localRooms() []domain.ChatRoom {
	rooms := localstore.LoadAll[domain.ChatRoom](s.Local, localstore.NSChatRooms)
	for i := range rooms {
		rooms[i].Source = domain.SourceLocal
	}
	sort.SliceStable(rooms, func(a, b int) bool {
		return rooms[a].LastActivity.After(rooms[b].LastActivity)
	})
	return rooms
}

func (s *ChatService) localRoomExists(id string) bool {
	for _, r := range localstore.LoadAll[domain.ChatRoom](s.Local, localstore.NSChatRooms) {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (s *ChatService) localMessages(roomID string) []domain.ChatMessage {
	all := localstore.LoadAll[domain.ChatMessage](s.Local, localstore.NSChatMessages)
	var out []domain.ChatMessage
	for _, m := range all {
		if m.RoomID == roomID {
			m.Source = domain.SourceLocal
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}
