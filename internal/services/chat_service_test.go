package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/domain"
	"github.com/reviewhub/go-review-backend/internal/identity"
	"github.com/reviewhub/go-review-backend/internal/localstore"
	"github.com/reviewhub/go-review-backend/internal/realtime"
	"github.com/reviewhub/go-review-backend/internal/repo"
)

// fakeChatBackend is an in-memory ChatBackend backed by the real hub, with a
// failure toggle to simulate a remote outage.
type fakeChatBackend struct {
	down     bool
	rooms    map[string]domain.ChatRoom
	messages map[string][]domain.ChatMessage
	hub      *realtime.Hub
	nextID   int

	joinCalls  int
	leaveCalls int
}

func newFakeChatBackend() *fakeChatBackend {
	return &fakeChatBackend{
		rooms:    map[string]domain.ChatRoom{},
		messages: map[string][]domain.ChatMessage{},
		hub:      realtime.NewHub(),
	}
}

func (f *fakeChatBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%04d", prefix, f.nextID)
}

func (f *fakeChatBackend) CreateRoom(_ context.Context, _ *gorm.DB, r *domain.ChatRoom) (*domain.ChatRoom, error) {
	if f.down {
		return nil, errDown
	}
	cp := *r
	cp.ID = f.id("room")
	f.rooms[cp.ID] = cp
	f.hub.PublishRoomsChanged()
	out := cp
	return &out, nil
}

func (f *fakeChatBackend) ListRooms(_ context.Context, _ *gorm.DB) ([]domain.ChatRoom, error) {
	if f.down {
		return nil, errDown
	}
	var out []domain.ChatRoom
	for _, r := range f.rooms {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeChatBackend) GetRoom(_ context.Context, _ *gorm.DB, id string) (*domain.ChatRoom, error) {
	if f.down {
		return nil, errDown
	}
	r, ok := f.rooms[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := r
	return &out, nil
}

func (f *fakeChatBackend) TouchRoom(_ context.Context, _ *gorm.DB, id string) error {
	if f.down {
		return errDown
	}
	r, ok := f.rooms[id]
	if !ok {
		return repo.ErrNotFound
	}
	r.LastActivity = time.Now().UTC()
	f.rooms[id] = r
	return nil
}

func (f *fakeChatBackend) AdjustActiveUsers(_ context.Context, _ *gorm.DB, id string, delta int) error {
	if f.down {
		return errDown
	}
	r, ok := f.rooms[id]
	if !ok {
		return repo.ErrNotFound
	}
	if delta > 0 {
		f.joinCalls++
	} else {
		f.leaveCalls++
	}
	r.ActiveUsers += delta
	if r.ActiveUsers < 0 {
		r.ActiveUsers = 0
	}
	r.LastActivity = time.Now().UTC()
	f.rooms[id] = r
	f.hub.PublishRoomsChanged()
	return nil
}

func (f *fakeChatBackend) ListInactiveRooms(_ context.Context, _ *gorm.DB, cutoff time.Time) ([]domain.ChatRoom, error) {
	if f.down {
		return nil, errDown
	}
	var out []domain.ChatRoom
	for _, r := range f.rooms {
		if r.LastActivity.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeChatBackend) DeleteRoom(_ context.Context, _ *gorm.DB, id string) (int64, error) {
	if f.down {
		return 0, errDown
	}
	if _, ok := f.rooms[id]; !ok {
		return 0, nil
	}
	delete(f.rooms, id)
	f.hub.PublishRoomsChanged()
	return 1, nil
}

func (f *fakeChatBackend) CreateMessage(_ context.Context, _ *gorm.DB, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	if f.down {
		return nil, errDown
	}
	cp := *m
	cp.ID = f.id("msg")
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	f.messages[cp.RoomID] = append(f.messages[cp.RoomID], cp)
	f.hub.PublishMessage(cp)
	out := cp
	return &out, nil
}

func (f *fakeChatBackend) ListMessages(_ context.Context, _ *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error) {
	if f.down {
		return nil, errDown
	}
	msgs := f.messages[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *fakeChatBackend) ListMessagesBefore(_ context.Context, _ *gorm.DB, roomID, beforeID string, limit int) ([]domain.ChatMessage, error) {
	if f.down {
		return nil, errDown
	}
	msgs := f.messages[roomID]
	idx := len(msgs)
	for i, m := range msgs {
		if m.ID == beforeID {
			idx = i
			break
		}
	}
	older := msgs[:idx]
	if limit > 0 && len(older) > limit {
		older = older[len(older)-limit:]
	}
	out := make([]domain.ChatMessage, len(older))
	copy(out, older)
	return out, nil
}

func (f *fakeChatBackend) DeleteMessagesForRoom(_ context.Context, _ *gorm.DB, roomID string) (int64, error) {
	if f.down {
		return 0, errDown
	}
	n := int64(len(f.messages[roomID]))
	delete(f.messages, roomID)
	return n, nil
}

func (f *fakeChatBackend) SubscribeRooms(fn func()) realtime.Unsubscribe {
	return f.hub.SubscribeRooms(fn)
}

func (f *fakeChatBackend) SubscribeMessages(roomID string, fn func(domain.ChatMessage)) realtime.Unsubscribe {
	return f.hub.SubscribeMessages(roomID, fn)
}

func newChatService(backend ChatBackend) *ChatService {
	return &ChatService{
		Backend: backend,
		Local:   localstore.New(localstore.NewMemStorage()),
	}
}

func TestCreateRoom_RemoteAndFallback(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)

	room, err := svc.CreateRoom(context.Background(), "general", "", "jane")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.Source != domain.SourceRemote || room.ActiveUsers != 0 {
		t.Fatalf("remote room wrong: %+v", room)
	}

	backend.down = true
	local, err := svc.CreateRoom(context.Background(), "offline-room", "made offline", "jane")
	if err != nil {
		t.Fatalf("CreateRoom during outage: %v", err)
	}
	if !localstore.IsLocalID(local.ID) || local.Source != domain.SourceLocal {
		t.Fatalf("fallback room wrong: %+v", local)
	}
	// The creator is the only possible occupant of a device-local room.
	if local.ActiveUsers != 1 {
		t.Fatalf("fallback room active users = %d, want 1", local.ActiveUsers)
	}

	if _, err := svc.CreateRoom(context.Background(), "   ", "", "jane"); !errors.Is(err, ErrEmptyRoomName) {
		t.Fatalf("blank name: err = %v", err)
	}
}

func TestRooms_MergedAcrossTiers(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)

	remote, _ := svc.CreateRoom(context.Background(), "general", "", "jane")
	backend.down = true
	local, _ := svc.CreateRoom(context.Background(), "offline", "", "jane")
	backend.down = false

	rooms, err := svc.Rooms(context.Background())
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	ids := map[string]domain.Source{}
	for _, r := range rooms {
		ids[r.ID] = r.Source
	}
	if ids[remote.ID] != domain.SourceRemote || ids[local.ID] != domain.SourceLocal {
		t.Fatalf("merged rooms wrong: %v", ids)
	}
}

func TestJoinLeave_PresenceAndLocalNoop(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)

	room, _ := svc.CreateRoom(context.Background(), "general", "", "jane")

	applied, err := svc.JoinRoom(context.Background(), room.ID)
	if err != nil || !applied {
		t.Fatalf("JoinRoom: applied=%v err=%v", applied, err)
	}
	if backend.rooms[room.ID].ActiveUsers != 1 {
		t.Fatalf("active users after join = %d", backend.rooms[room.ID].ActiveUsers)
	}

	// Leaving twice never drives the counter negative.
	for i := 0; i < 2; i++ {
		if _, err := svc.LeaveRoom(context.Background(), room.ID); err != nil {
			t.Fatalf("LeaveRoom #%d: %v", i+1, err)
		}
	}
	if got := backend.rooms[room.ID].ActiveUsers; got != 0 {
		t.Fatalf("active users after double leave = %d, want 0", got)
	}

	// Local rooms are single-device; presence is a no-op, not an error.
	backend.down = true
	local, _ := svc.CreateRoom(context.Background(), "offline", "", "jane")
	backend.down = false
	if applied, err := svc.JoinRoom(context.Background(), local.ID); err != nil || applied {
		t.Fatalf("local join: applied=%v err=%v", applied, err)
	}
	if backend.joinCalls != 1 {
		t.Fatalf("backend join calls = %d, want 1", backend.joinCalls)
	}

	if _, err := svc.JoinRoom(context.Background(), "missing"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("join missing room: err = %v", err)
	}
}

func TestSendMessage_FallbackKeepsSenderCopy(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)

	room, _ := svc.CreateRoom(context.Background(), "general", "", "jane")

	sent, err := svc.SendMessage(context.Background(), room.ID, &domain.ChatMessage{Author: "jane", Content: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent.Source != domain.SourceRemote {
		t.Fatalf("remote send source = %q", sent.Source)
	}

	backend.down = true
	offline, err := svc.SendMessage(context.Background(), room.ID, &domain.ChatMessage{Author: "jane", Content: "anyone?"})
	if err != nil {
		t.Fatalf("SendMessage during outage: %v", err)
	}
	if offline.Source != domain.SourceLocal || !localstore.IsLocalID(offline.ID) {
		t.Fatalf("fallback message wrong: %+v", offline)
	}
	backend.down = false

	// The merged history shows both, oldest first.
	msgs, err := svc.Messages(context.Background(), room.ID, 0, "")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != sent.ID || msgs[1].ID != offline.ID {
		t.Fatalf("merged history wrong: %+v", msgs)
	}

	if _, err := svc.SendMessage(context.Background(), room.ID, &domain.ChatMessage{Content: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank message: err = %v", err)
	}
}

func TestMessages_WindowAndBackPaging(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)
	svc.MessageLimit = 3

	room, _ := svc.CreateRoom(context.Background(), "general", "", "jane")
	var ids []string
	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		m, err := svc.SendMessage(context.Background(), room.ID, &domain.ChatMessage{
			Author:  "jane",
			Content: fmt.Sprintf("msg %d", i),
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		// Space the fake timestamps so ordering is deterministic.
		stored := backend.messages[room.ID]
		stored[len(stored)-1].CreatedAt = base.Add(time.Duration(i) * time.Second)
		ids = append(ids, m.ID)
	}

	// Newest window only.
	msgs, err := svc.Messages(context.Background(), room.ID, 0, "")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != ids[2] || msgs[2].ID != ids[4] {
		t.Fatalf("window wrong: %+v", msgs)
	}

	// Page backwards from the start of the window.
	older, err := svc.Messages(context.Background(), room.ID, 3, ids[2])
	if err != nil {
		t.Fatalf("Messages before: %v", err)
	}
	if len(older) != 2 || older[0].ID != ids[0] || older[1].ID != ids[1] {
		t.Fatalf("back page wrong: %+v", older)
	}
}

func TestSubscribeMessages_DeliversSnapshotOnPublish(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)

	room, _ := svc.CreateRoom(context.Background(), "general", "", "jane")

	var snapshots [][]domain.ChatMessage
	unsub := svc.SubscribeMessages(context.Background(), room.ID, func(msgs []domain.ChatMessage) {
		snapshots = append(snapshots, msgs)
	})
	defer unsub()

	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("expected one empty initial snapshot, got %v", snapshots)
	}

	if _, err := svc.SendMessage(context.Background(), room.ID, &domain.ChatMessage{Author: "jane", Content: "hi"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 1 || snapshots[1][0].Content != "hi" {
		t.Fatalf("expected snapshot after publish, got %v", snapshots)
	}

	unsub()
	if _, err := svc.SendMessage(context.Background(), room.ID, &domain.ChatMessage{Author: "jane", Content: "again"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("snapshot delivered after unsubscribe: %v", snapshots)
	}
}

func TestSubscribeRooms_InitialAndOnChange(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)

	var lists [][]domain.ChatRoom
	unsub := svc.SubscribeRooms(context.Background(), func(rooms []domain.ChatRoom) {
		lists = append(lists, rooms)
	})
	defer unsub()

	if len(lists) != 1 {
		t.Fatalf("expected initial delivery, got %d", len(lists))
	}
	if _, err := svc.CreateRoom(context.Background(), "general", "", "jane"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(lists) != 2 || len(lists[1]) != 1 {
		t.Fatalf("expected redelivery after room change, got %v", lists)
	}
}

func TestCleanup_RemovesIdleEmptyRoomsOnly(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)
	svc.RoomInactivity = 30 * time.Minute

	idle, _ := svc.CreateRoom(context.Background(), "idle", "", "jane")
	occupied, _ := svc.CreateRoom(context.Background(), "occupied", "", "jane")
	fresh, _ := svc.CreateRoom(context.Background(), "fresh", "", "jane")

	old := time.Now().UTC().Add(-time.Hour)
	for _, id := range []string{idle.ID, occupied.ID} {
		r := backend.rooms[id]
		r.LastActivity = old
		backend.rooms[id] = r
	}
	r := backend.rooms[occupied.ID]
	r.ActiveUsers = 2
	backend.rooms[occupied.ID] = r

	if _, err := svc.SendMessage(context.Background(), idle.ID, &domain.ChatMessage{Author: "jane", Content: "bye"}); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	ir := backend.rooms[idle.ID]
	ir.LastActivity = old
	backend.rooms[idle.ID] = ir

	removed, err := svc.CleanupInactiveRooms(context.Background())
	if err != nil {
		t.Fatalf("CleanupInactiveRooms: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := backend.rooms[idle.ID]; ok {
		t.Fatalf("idle empty room survived cleanup")
	}
	if _, ok := backend.rooms[occupied.ID]; !ok {
		t.Fatalf("occupied room was removed")
	}
	if _, ok := backend.rooms[fresh.ID]; !ok {
		t.Fatalf("fresh room was removed")
	}
	if len(backend.messages[idle.ID]) != 0 {
		t.Fatalf("idle room messages survived cleanup")
	}

	// A second sweep over the same state removes nothing.
	removed, err = svc.CleanupInactiveRooms(context.Background())
	if err != nil {
		t.Fatalf("second CleanupInactiveRooms: %v", err)
	}
	if removed != 0 {
		t.Fatalf("second sweep removed = %d, want 0", removed)
	}
}

func TestDeleteRoom_PermissionAndCascade(t *testing.T) {
	backend := newFakeChatBackend()
	svc := newChatService(backend)

	room, _ := svc.CreateRoom(context.Background(), "general", "", "Jane")
	if _, err := svc.SendMessage(context.Background(), room.ID, &domain.ChatMessage{Author: "Jane", Content: "hello"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	stranger := &identity.User{ID: "u2", Email: "zed@example.com", Name: "Zed"}
	if err := svc.DeleteRoom(context.Background(), stranger, room.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger delete: err = %v", err)
	}

	creator := &identity.User{ID: "u1", Email: "jane@example.com", Name: "Jane"}
	if err := svc.DeleteRoom(context.Background(), creator, room.ID); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	if _, ok := backend.rooms[room.ID]; ok {
		t.Fatalf("room survived delete")
	}
	if len(backend.messages[room.ID]) != 0 {
		t.Fatalf("messages survived room delete")
	}
}
