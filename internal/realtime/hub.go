// Package realtime provides the in-process change feed backing the chat
// subscriptions. The relational backend publishes after successful inserts;
// services and the websocket transport subscribe. Delivery follows publish
// order per topic; subscribers that need chronological order re-sort on
// CreatedAt after merging with local records.
package realtime

import (
	"sync"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

// Unsubscribe removes a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Hub fans out room-list changes and per-room message inserts to registered
// callbacks. Callbacks run synchronously on the publishing goroutine and must
// not block; the chat service keeps its handlers short (snapshot + channel
// send) for that reason.
type Hub struct {
	mu sync.Mutex

	nextID   int
	roomSubs map[int]func()
	msgSubs  map[string]map[int]func(domain.ChatMessage)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		roomSubs: make(map[int]func()),
		msgSubs:  make(map[string]map[int]func(domain.ChatMessage)),
	}
}

// SubscribeRooms registers fn to run after every room-list change
// (create, delete, activity bump).
func (h *Hub) SubscribeRooms(fn func()) Unsubscribe {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.roomSubs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.roomSubs, id)
			h.mu.Unlock()
		})
	}
}

// SubscribeMessages registers fn for inserts into a single room.
func (h *Hub) SubscribeMessages(roomID string, fn func(domain.ChatMessage)) Unsubscribe {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	subs, ok := h.msgSubs[roomID]
	if !ok {
		subs = make(map[int]func(domain.ChatMessage))
		h.msgSubs[roomID] = subs
	}
	subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.msgSubs[roomID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.msgSubs, roomID)
				}
			}
			h.mu.Unlock()
		})
	}
}

// PublishRoomsChanged notifies room-list subscribers.
func (h *Hub) PublishRoomsChanged() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.roomSubs))
	for _, fn := range h.roomSubs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// PublishMessage notifies subscribers of msg's room.
func (h *Hub) PublishMessage(msg domain.ChatMessage) {
	h.mu.Lock()
	fns := make([]func(domain.ChatMessage), 0)
	for _, fn := range h.msgSubs[msg.RoomID] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}
