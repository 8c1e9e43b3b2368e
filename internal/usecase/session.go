package usecase

import (
	"context"
	"sync"
	"time"

	"kurir/internal/domain/entity"
	"kurir/internal/infrastructure/stream"
	"kurir/pkg/errors"
)

// SessionState is the client-visible lifecycle of one messaging surface:
//
//	Closed → RoomList → PendingNew(target) → ActiveRoom(id) → RoomList
//
// A Session is an explicit per-user, per-device object; two tabs get two
// sessions and cannot interfere with each other.
type SessionState int

const (
	SessionClosed SessionState = iota
	SessionRoomList
	SessionPendingNew
	SessionActiveRoom
)

func (s SessionState) String() string {
	switch s {
	case SessionClosed:
		return "closed"
	case SessionRoomList:
		return "room_list"
	case SessionPendingNew:
		return "pending_new"
	case SessionActiveRoom:
		return "active_room"
	default:
		return "unknown"
	}
}

type Session struct {
	userID   string
	rooms    *RoomUseCase
	messages *MessageUseCase

	mu            sync.Mutex
	state         SessionState
	pendingTarget string
	activeRoomID  string
	sub           *stream.Subscription
}

func NewSession(userID string, rooms *RoomUseCase, messages *MessageUseCase) *Session {
	return &Session{
		userID:   userID,
		rooms:    rooms,
		messages: messages,
		state:    SessionClosed,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveRoomID reports the room being viewed, empty outside the active state.
func (s *Session) ActiveRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoomID
}

func (s *Session) invalidTransition(op string) error {
	return errors.New("INVALID_STATE",
		"cannot "+op+" from session state "+s.state.String(),
		400, nil)
}

// OpenList enters the room-list state from anywhere and returns the user's
// conversations, most recent first. Leaving an active room this way touches
// the cursor so fully-read rooms show zero unread.
func (s *Session) OpenList(ctx context.Context) ([]*entity.RoomSummary, error) {
	s.mu.Lock()
	if s.state == SessionActiveRoom {
		s.detachLocked(ctx)
	}
	s.state = SessionRoomList
	s.pendingTarget = ""
	s.mu.Unlock()

	return s.rooms.RoomList(ctx, s.userID)
}

// OpenRoom selects an existing room: touch, then subscribe from joinedAt.
// The returned channel is the live message feed for the room view.
func (s *Session) OpenRoom(ctx context.Context, roomID string) (<-chan *entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionRoomList {
		return nil, s.invalidTransition("open a room")
	}

	if err := s.messages.Touch(ctx, s.userID, roomID); err != nil {
		return nil, err
	}

	sub, err := s.messages.Subscribe(ctx, s.userID, roomID, time.Time{})
	if err != nil {
		return nil, err
	}

	s.state = SessionActiveRoom
	s.activeRoomID = roomID
	s.sub = sub

	return sub.C, nil
}

// StartConversation initiates a chat with the target user. When a private
// room already exists the session goes straight to it; otherwise it enters
// the pending state and no room exists until the first send.
func (s *Session) StartConversation(ctx context.Context, targetID string) (<-chan *entity.Message, bool, error) {
	s.mu.Lock()
	if s.state != SessionRoomList {
		defer s.mu.Unlock()
		return nil, false, s.invalidTransition("start a conversation")
	}
	s.mu.Unlock()

	room, err := s.rooms.FindPrivateRoom(ctx, s.userID, targetID)
	if err != nil {
		if !errors.Is(err, "NOT_FOUND") {
			return nil, false, err
		}
		s.mu.Lock()
		s.state = SessionPendingNew
		s.pendingTarget = targetID
		s.mu.Unlock()
		return nil, true, nil
	}

	feed, err := s.OpenRoom(ctx, room.ID)
	return feed, false, err
}

// Send delivers a message in the current conversation. In the pending state
// the first send creates (or adopts) the private room and promotes the
// session to the active state; afterwards sends go straight to the log.
// On failure the state is unchanged, so the client can retry the compose.
func (s *Session) Send(ctx context.Context, input SendMessageInput) (*entity.Message, error) {
	s.mu.Lock()
	state := s.state
	target := s.pendingTarget
	roomID := s.activeRoomID
	s.mu.Unlock()

	switch state {
	case SessionPendingNew:
		room, message, err := s.rooms.OpenOrCreate(ctx, s.userID, target, input)
		if err != nil {
			return nil, err
		}

		sub, err := s.messages.Subscribe(ctx, s.userID, room.ID, time.Time{})
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.state != SessionPendingNew {
			// A racing send already promoted the session; its feed stands
			// and the extra subscription is dropped.
			s.mu.Unlock()
			sub.Cancel()
			return message, nil
		}
		if s.sub != nil {
			s.sub.Cancel()
		}
		s.state = SessionActiveRoom
		s.activeRoomID = room.ID
		s.pendingTarget = ""
		s.sub = sub
		s.mu.Unlock()

		return message, nil

	case SessionActiveRoom:
		return s.messages.Send(ctx, roomID, s.userID, input)

	default:
		return nil, s.invalidTransition("send")
	}
}

// Feed returns the active room's live channel, nil outside the active state.
func (s *Session) Feed() <-chan *entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.sub.C
}

// Leave departs the active room permanently: the subscription is dropped,
// the membership removed, and the session returns to the room list.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if s.state != SessionActiveRoom {
		defer s.mu.Unlock()
		return s.invalidTransition("leave a room")
	}
	roomID := s.activeRoomID
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.state = SessionRoomList
	s.activeRoomID = ""
	s.mu.Unlock()

	return s.rooms.Leave(ctx, s.userID, roomID)
}

// Close shuts the messaging surface down entirely.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionActiveRoom {
		s.detachLocked(ctx)
	}
	s.state = SessionClosed
	s.pendingTarget = ""
}

// detachLocked leaves the room *view* (not the membership): touch once more
// so everything read so far counts as read, then cancel the live feed.
func (s *Session) detachLocked(ctx context.Context) {
	if s.activeRoomID != "" {
		// A failed touch leaves the unread count stale until the next view.
		_ = s.messages.Touch(ctx, s.userID, s.activeRoomID)
	}
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.activeRoomID = ""
}
