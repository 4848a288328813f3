// WebSocket handlers for live chat delivery.
//
// Two streams are exposed:
//   - GET /ws/rooms            pushes the merged room list on every change
//   - GET /rooms/{id}/ws       pushes the room's merged message snapshot on
//     every stored message, and accepts {"content": "..."} frames to send
//
// Both streams deliver one snapshot immediately on connect, mirroring the
// polling endpoints, so a client needs no separate initial fetch.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/reviewhub/go-review-backend/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers enforce their own same-origin policy for the page; the API's
	// CORS posture already governs who may script against it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes concurrent writes to one websocket connection. The
// subscription callback and the read loop both touch the socket.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

type wsIncoming struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

// RoomsWS streams the merged room list. Each frame is the full current list;
// clients replace rather than patch.
func (h *Handlers) RoomsWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	w := &wsWriter{conn: conn}
	unsubscribe := h.chatSvc.SubscribeRooms(c.Request.Context(), func(rooms []domain.ChatRoom) {
		_ = w.writeJSON(rooms)
	})
	defer unsubscribe()

	// Drain control frames until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RoomMessagesWS streams a room's merged message snapshot and relays sent
// messages through the same service path as POST /rooms/{id}/messages.
func (h *Handlers) RoomMessagesWS(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := h.chatSvc.GetRoom(c.Request.Context(), roomID); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	u := actor(c)
	w := &wsWriter{conn: conn}
	unsubscribe := h.chatSvc.SubscribeMessages(c.Request.Context(), roomID, func(msgs []domain.ChatMessage) {
		_ = w.writeJSON(msgs)
	})
	defer unsubscribe()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in wsIncoming
		if err := json.Unmarshal(payload, &in); err != nil {
			continue
		}
		if strings.TrimSpace(in.Content) == "" {
			continue
		}
		m := &domain.ChatMessage{
			Content: in.Content,
			Author:  authorOf(u, in.Author),
		}
		if u != nil {
			m.UserID = u.ID
			m.AvatarURL = u.AvatarURL
		}
		if _, err := h.chatSvc.SendMessage(c.Request.Context(), roomID, m); err != nil {
			_ = w.writeJSON(gin.H{"code": ErrCodeCreateFailed, "message": err.Error()})
		}
	}
}
