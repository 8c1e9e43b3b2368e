package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"kurir/internal/usecase"
	"kurir/pkg/response"
)

type RoomHandler struct {
	roomUseCase    *usecase.RoomUseCase
	messageUseCase *usecase.MessageUseCase
}

func NewRoomHandler(roomUseCase *usecase.RoomUseCase, messageUseCase *usecase.MessageUseCase) *RoomHandler {
	return &RoomHandler{
		roomUseCase:    roomUseCase,
		messageUseCase: messageUseCase,
	}
}

type openRoomRequest struct {
	RecipientID   string `json:"recipient_id" validate:"required"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url,omitempty" validate:"omitempty,url"`
}

type sendMessageRequest struct {
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url,omitempty" validate:"omitempty,url"`
}

// OpenRoom is the first-send path: reuses the private room with the recipient
// when one exists, creates it otherwise, and appends the message.
func (h *RoomHandler) OpenRoom(c echo.Context) error {
	var req openRoomRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	room, message, err := h.roomUseCase.OpenOrCreate(c.Request().Context(), userID, req.RecipientID, usecase.SendMessageInput{
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]interface{}{
		"room":    room,
		"message": message,
	})
}

// ListRooms returns the user's conversations with unread counts, most recent
// activity first.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	userID := c.Get("uid").(string)

	summaries, err := h.roomUseCase.RoomList(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, summaries)
}

// GetRoom returns one room the user participates in.
func (h *RoomHandler) GetRoom(c echo.Context) error {
	roomID := c.Param("id")
	userID := c.Get("uid").(string)

	room, err := h.roomUseCase.RoomForParticipant(c.Request().Context(), userID, roomID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, room)
}

// SendMessage appends a message to an existing room.
func (h *RoomHandler) SendMessage(c echo.Context) error {
	roomID := c.Param("id")
	userID := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.messageUseCase.Send(c.Request().Context(), roomID, userID, usecase.SendMessageInput{
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages returns stored history, floored at the requester's join time.
// since is RFC 3339; absent means everything visible to the requester.
func (h *RoomHandler) GetMessages(c echo.Context) error {
	roomID := c.Param("id")
	userID := c.Get("uid").(string)

	var since time.Time
	if sinceStr := c.QueryParam("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339Nano, sinceStr)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC 3339")
		}
		since = parsed
	}

	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	messages, err := h.messageUseCase.History(c.Request().Context(), userID, roomID, since, limit)
	if err != nil {
		return response.Error(c, err)
	}

	// The last sentAt is the resume point; the boundary message repeats on
	// the next page and clients merge by id.
	nextSince := ""
	if len(messages) == limit {
		nextSince = messages[len(messages)-1].SentAt.Format(time.RFC3339Nano)
	}

	return response.SuccessPaged(c, messages, len(messages), nextSince)
}

// MarkRead advances the caller's read cursor to now.
func (h *RoomHandler) MarkRead(c echo.Context) error {
	roomID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.messageUseCase.Touch(c.Request().Context(), userID, roomID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// LeaveRoom removes the caller from the room permanently. Idempotent; the
// last participant out triggers teardown.
func (h *RoomHandler) LeaveRoom(c echo.Context) error {
	roomID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.roomUseCase.Leave(c.Request().Context(), userID, roomID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}
