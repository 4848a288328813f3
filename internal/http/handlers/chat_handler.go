// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat resources:
//   - POST   /rooms                    (create)
//   - GET    /rooms                    (list, merged, ETag support)
//   - GET    /rooms/{id}               (fetch)
//   - DELETE /rooms/{id}               (delete with message cascade)
//   - POST   /rooms/{id}/join          (presence +1)
//   - POST   /rooms/{id}/leave         (presence -1, floored at 0)
//   - GET    /rooms/{id}/messages      (history, before_id paging)
//   - POST   /rooms/{id}/messages      (send)
//
// Live delivery over WebSocket lives in ws_handler.go.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/go-review-backend/internal/domain"
	"github.com/reviewhub/go-review-backend/internal/http/middleware"
	"github.com/reviewhub/go-review-backend/internal/repo"
	"github.com/reviewhub/go-review-backend/internal/services"
	"github.com/reviewhub/go-review-backend/internal/utils"
)

//
// DTOs
//

// CreateRoomRequest is the JSON payload for creating a chat room.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=255" example:"coffee-talk"`
	Description string `json:"description" example:"Everything espresso"`
	// CreatedBy overrides the identity display name for anonymous creators.
	CreatedBy string `json:"created_by" example:"Jane D."`
}

// SendMessageRequest is the JSON payload for posting a chat message.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required" example:"anyone tried the new grinder?"`
	Author  string `json:"author" example:"Sam"`
}

// PresenceResponse reports the outcome of a join or leave call. Joined is
// false when the room is device-local and presence does not apply.
type PresenceResponse struct {
	RoomID  string `json:"room_id"`
	Applied bool   `json:"applied"`
}

//
// Handlers
//

// CreateRoom godoc
// @ID          createRoom
// @Summary     Create a chat room
// @Description Creates a room remotely, or on the device-local tier when the backend is unavailable.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateRoomRequest  true  "Create room payload"
//
// @Success     201  {object} domain.ChatRoom
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /rooms [post]
func (h *Handlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ctx := c.Request.Context()
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	svcImpl, _ := h.chatSvc.(*services.ChatService)

	// Replay: a create already completed under the same key returns the stored
	// room instead of making a duplicate.
	if hasKey && svcImpl != nil && svcImpl.DB != nil {
		uid := middleware.IdempotencyUser(c)
		scope := middleware.IdempotencyScope(c)
		if rec, err := repo.GetIdempotency(ctx, svcImpl.DB, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := h.chatSvc.GetRoom(ctx, rec.ResultID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, prev)
				return
			}
		}
	}

	createdBy := authorOf(actor(c), req.CreatedBy)
	room, err := h.chatSvc.CreateRoom(ctx, req.Name, req.Description, createdBy)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyRoomName):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}

	// Record the outcome so retries with the same key replay it. Best effort.
	if hasKey && svcImpl != nil && svcImpl.DB != nil {
		_, _ = repo.CreateIdempotency(ctx, svcImpl.DB,
			middleware.IdempotencyUser(c), middleware.IdempotencyScope(c), idemKey,
			room.ID, http.StatusCreated, h.idemTTL)
	}
	ok(c, http.StatusCreated, room)
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List chat rooms (merged)
// @Description Returns remote rooms followed by device-local rooms, each tier sorted by recent activity. Supports weak ETag via If-None-Match.
// @Tags        Chat
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {array}  domain.ChatRoom
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()

	if svc, okType := h.chatSvc.(*services.ChatService); okType && svc.DB != nil {
		count, maxTS, err := repo.RoomsStats(ctx, svc.DB)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"rooms:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	rooms, err := h.chatSvc.Rooms(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, rooms)
}

// GetRoom godoc
// @ID          getRoom
// @Summary     Fetch a chat room
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Room ID"
//
// @Success     200  {object} domain.ChatRoom
// @Failure     404  {object} handlers.ErrorResponse "Room not found"
// @Router      /rooms/{id} [get]
func (h *Handlers) GetRoom(c *gin.Context) {
	room, err := h.chatSvc.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		return
	}
	ok(c, http.StatusOK, room)
}

// DeleteRoom godoc
// @ID          deleteRoom
// @Summary     Delete a chat room
// @Description Removes the room and all of its messages after checking the acting identity against the room's creator.
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Room ID"
//
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Room not found"
// @Router      /rooms/{id} [delete]
func (h *Handlers) DeleteRoom(c *gin.Context) {
	err := h.chatSvc.DeleteRoom(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		switch {
		case isForbidden(err):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		case errors.Is(err, services.ErrRoomNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// JoinRoom godoc
// @ID          joinRoom
// @Summary     Join a chat room
// @Description Atomically increments the room's presence counter and refreshes its activity timestamp. No-op for device-local rooms.
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Room ID"
//
// @Success     200  {object} handlers.PresenceResponse
// @Failure     404  {object} handlers.ErrorResponse "Room not found"
// @Router      /rooms/{id}/join [post]
func (h *Handlers) JoinRoom(c *gin.Context) {
	id := c.Param("id")
	applied, err := h.chatSvc.JoinRoom(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		return
	}
	ok(c, http.StatusOK, PresenceResponse{RoomID: id, Applied: applied})
}

// LeaveRoom godoc
// @ID          leaveRoom
// @Summary     Leave a chat room
// @Description Atomically decrements the room's presence counter, never below zero. No-op for device-local rooms.
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Room ID"
//
// @Success     200  {object} handlers.PresenceResponse
// @Failure     404  {object} handlers.ErrorResponse "Room not found"
// @Router      /rooms/{id}/leave [post]
func (h *Handlers) LeaveRoom(c *gin.Context) {
	id := c.Param("id")
	applied, err := h.chatSvc.LeaveRoom(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		return
	}
	ok(c, http.StatusOK, PresenceResponse{RoomID: id, Applied: applied})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Room message history
// @Description Returns messages oldest-first. Without before_id the newest page is returned with device-local fallback messages merged in; with before_id it pages backwards through remote history.
// @Tags        Chat
// @Produce     json
//
// @Param       id         path   string  true  "Room ID"
// @Param       limit      query  int     false "Max messages"  default(100)
// @Param       before_id  query  string  false "Page backwards from this message id"
//
// @Success     200  {array}  domain.ChatMessage
// @Failure     404  {object} handlers.ErrorResponse "Room not found"
// @Router      /rooms/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	msgs, err := h.chatSvc.Messages(c.Request.Context(), c.Param("id"), limit, c.Query("before_id"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	ok(c, http.StatusOK, msgs)
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a chat message
// @Description Stores the message remotely and bumps room activity, or falls back to the device-local tier so the sender still sees it.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Room ID"
// @Param       body  body  handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object} domain.ChatMessage
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Room not found"
// @Router      /rooms/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	u := actor(c)
	m := &domain.ChatMessage{
		Content: req.Content,
		Author:  authorOf(u, req.Author),
	}
	if u != nil {
		m.UserID = u.ID
		m.AvatarURL = u.AvatarURL
	}

	created, err := h.chatSvc.SendMessage(c.Request.Context(), c.Param("id"), m)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrRoomNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, created)
}
