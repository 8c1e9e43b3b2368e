package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"kurir/internal/adapter/api/middleware"
	"kurir/internal/domain/entity"
	"kurir/internal/infrastructure/stream"
	"kurir/internal/usecase"
	"kurir/pkg/errors"
)

// WebSocketHandler drives one messaging session per connection. The server
// pushes room events for every conversation the user participates in; the
// client steers the session with control frames:
//
//	{"type":"open_room","room_id":...}   enter a room, start its live feed
//	{"type":"start","recipient_id":...}  start (or resume) a private chat
//	{"type":"send","content":...}        send in the current conversation
//	{"type":"close_room"}                back to the room list
//	{"type":"leave"}                     depart the current room permanently
type WebSocketHandler struct {
	roomUseCase    *usecase.RoomUseCase
	messageUseCase *usecase.MessageUseCase
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // You should restrict this in production
	},
}

func NewWebSocketHandler(roomUseCase *usecase.RoomUseCase, messageUseCase *usecase.MessageUseCase, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		roomUseCase:    roomUseCase,
		messageUseCase: messageUseCase,
		authMiddleware: authMiddleware,
	}
}

type wsInbound struct {
	Type          string `json:"type"`
	RoomID        string `json:"room_id,omitempty"`
	RecipientID   string `json:"recipient_id,omitempty"`
	Content       string `json:"content,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

type wsOutbound struct {
	Type    string                `json:"type"`
	RoomID  string                `json:"room_id,omitempty"`
	Rooms   []*entity.RoomSummary `json:"rooms,omitempty"`
	Message *entity.Message       `json:"message,omitempty"`
	Pending bool                  `json:"pending,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID, ok := c.Get("uid").(string)
	if !ok || userID == "" {
		// Browsers cannot set headers on websocket dials, so the token may
		// arrive as a query parameter instead.
		token := c.QueryParam("token")
		if token == "" {
			return errors.Unauthorized("Authentication required", nil)
		}
		uid, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
		if err != nil {
			return errors.Unauthorized("Invalid or expired token", err)
		}
		userID = uid
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	session := usecase.NewSession(userID, h.roomUseCase, h.messageUseCase)
	events := h.messageUseCase.SubscribeRoomEvents(userID)

	wc := &wsConn{
		conn:     conn,
		session:  session,
		events:   events,
		outbound: make(chan wsOutbound, 16),
		done:     make(chan struct{}),
	}

	go wc.writePump()
	go wc.forwardEvents()
	wc.readPump(c)

	return nil
}

type wsConn struct {
	conn    *gorillaws.Conn
	session *usecase.Session
	events  *stream.UserSubscription

	outbound chan wsOutbound
	done     chan struct{}
	once     sync.Once
}

func (wc *wsConn) close() {
	wc.once.Do(func() {
		close(wc.done)
		wc.events.Cancel()
		wc.conn.Close()
	})
}

func (wc *wsConn) push(out wsOutbound) {
	select {
	case wc.outbound <- out:
	case <-wc.done:
	}
}

func (wc *wsConn) pushError(err error) {
	msg := err.Error()
	if appErr, ok := err.(*errors.AppError); ok {
		msg = appErr.Message
	}
	wc.push(wsOutbound{Type: "error", Error: msg})
}

func (wc *wsConn) writePump() {
	for {
		select {
		case out := <-wc.outbound:
			if err := wc.conn.WriteJSON(out); err != nil {
				wc.close()
				return
			}
		case <-wc.done:
			return
		}
	}
}

// forwardEvents relays the user's room-event feed for the room-list view.
func (wc *wsConn) forwardEvents() {
	for event := range wc.events.C {
		wc.push(wsOutbound{Type: "room_event", RoomID: event.RoomID, Message: event.Message})
	}
}

// forwardFeed relays one room's live message feed until its subscription is
// cancelled (close_room, leave, or room teardown).
func (wc *wsConn) forwardFeed(roomID string, feed <-chan *entity.Message) {
	for m := range feed {
		wc.push(wsOutbound{Type: "message", RoomID: roomID, Message: m})
	}
}

func (wc *wsConn) readPump(c echo.Context) {
	defer wc.close()
	defer wc.session.Close(c.Request().Context())

	ctx := c.Request().Context()

	// The feed currently being forwarded, so a send in an already-active
	// room does not spawn a second forwarder.
	var currentFeed <-chan *entity.Message

	// Every connection starts at the room list.
	summaries, err := wc.session.OpenList(ctx)
	if err != nil {
		wc.pushError(err)
	} else {
		wc.push(wsOutbound{Type: "rooms", Rooms: summaries})
	}

	for {
		_, raw, err := wc.conn.ReadMessage()
		if err != nil {
			return
		}

		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil {
			wc.pushError(errors.BadRequest("malformed frame", err))
			continue
		}

		switch in.Type {
		case "open_room":
			feed, err := wc.session.OpenRoom(ctx, in.RoomID)
			if err != nil {
				wc.pushError(err)
				continue
			}
			currentFeed = feed
			go wc.forwardFeed(in.RoomID, feed)

		case "start":
			feed, pending, err := wc.session.StartConversation(ctx, in.RecipientID)
			if err != nil {
				wc.pushError(err)
				continue
			}
			wc.push(wsOutbound{Type: "started", Pending: pending})
			if feed != nil {
				currentFeed = feed
				go wc.forwardFeed(wc.session.ActiveRoomID(), feed)
			}

		case "send":
			message, err := wc.session.Send(ctx, usecase.SendMessageInput{
				Content:       in.Content,
				AttachmentURL: in.AttachmentURL,
			})
			if err != nil {
				wc.pushError(err)
				continue
			}
			// A pending conversation materializes on first send; its live
			// feed starts now.
			if feed := wc.session.Feed(); feed != nil && feed != currentFeed {
				currentFeed = feed
				go wc.forwardFeed(message.RoomID, feed)
			}

		case "close_room":
			summaries, err := wc.session.OpenList(ctx)
			if err != nil {
				wc.pushError(err)
				continue
			}
			wc.push(wsOutbound{Type: "rooms", Rooms: summaries})

		case "leave":
			if err := wc.session.Leave(ctx); err != nil {
				wc.pushError(err)
				continue
			}
			wc.push(wsOutbound{Type: "left"})

		default:
			wc.pushError(errors.BadRequest("unknown frame type", nil))
		}
	}
}
