package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kurir/internal/domain/entity"
	"kurir/internal/domain/repository"
	"kurir/internal/infrastructure/stream"
	"kurir/pkg/errors"
)

type MessageUseCase struct {
	msgRepo    repository.MessageRepository
	roomRepo   repository.RoomRepository
	cursorRepo repository.CursorRepository
	broker     *stream.Broker
	log        *slog.Logger

	// Per-room append state. The lock serializes timestamp assignment,
	// store write and publish, which is what makes per-room delivery order
	// equal send order.
	appends sync.Map
}

type appendState struct {
	mu   sync.Mutex
	last time.Time
}

func NewMessageUseCase(
	msgRepo repository.MessageRepository,
	roomRepo repository.RoomRepository,
	cursorRepo repository.CursorRepository,
	broker *stream.Broker,
	log *slog.Logger,
) *MessageUseCase {
	return &MessageUseCase{
		msgRepo:    msgRepo,
		roomRepo:   roomRepo,
		cursorRepo: cursorRepo,
		broker:     broker,
		log:        log,
	}
}

type SendMessageInput struct {
	Content       string
	AttachmentURL string
}

func (uc *MessageUseCase) appendStateFor(roomID string) *appendState {
	state, _ := uc.appends.LoadOrStore(roomID, &appendState{})
	return state.(*appendState)
}

// dropAppendState releases a torn-down room's append lock. A send racing the
// teardown would recreate the entry, then fail its room lookup.
func (uc *MessageUseCase) dropAppendState(roomID string) {
	uc.appends.Delete(roomID)
}

// Send appends a message to the room's log. The sender must currently be a
// participant; sentAt is server-assigned, never before the room's previous
// message (ties keep arrival order).
func (uc *MessageUseCase) Send(ctx context.Context, roomID, senderID string, input SendMessageInput) (*entity.Message, error) {
	if input.Content == "" && input.AttachmentURL == "" {
		return nil, errors.BadRequest("message needs content or an attachment", nil)
	}

	room, err := readRetry(ctx, func() (*entity.Room, error) {
		return uc.roomRepo.GetByID(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(senderID) {
		return nil, errors.NotAParticipant(senderID, roomID)
	}

	state := uc.appendStateFor(roomID)
	state.mu.Lock()
	defer state.mu.Unlock()

	sentAt := time.Now()
	if sentAt.Before(state.last) {
		sentAt = state.last
	}

	message := &entity.Message{
		RoomID:        roomID,
		SenderID:      senderID,
		Content:       input.Content,
		AttachmentURL: input.AttachmentURL,
		SentAt:        sentAt,
	}

	if err := uc.msgRepo.Create(ctx, message); err != nil {
		return nil, err
	}
	state.last = sentAt

	room.LastMessage = message.Content
	room.LastMessageAt = message.SentAt
	if err := uc.roomRepo.Update(ctx, room); err != nil {
		// The message is durably in the log; a stale room summary corrects
		// itself on the next append.
		uc.log.Warn("failed to update room summary after send", "room", roomID, "error", err)
	}

	uc.broker.Publish(message, room.Participants)

	return message, nil
}

// Subscribe opens a live, ordered, gapless feed of the room's messages with
// SentAt >= since. A zero since falls back to the subscriber's joinedAt.
// Cancel the returned subscription to stop delivery.
func (uc *MessageUseCase) Subscribe(ctx context.Context, userID, roomID string, since time.Time) (*stream.Subscription, error) {
	room, err := readRetry(ctx, func() (*entity.Room, error) {
		return uc.roomRepo.GetByID(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, errors.NotAParticipant(userID, roomID)
	}

	if since.IsZero() {
		since = uc.JoinedAt(ctx, userID, roomID)
	}

	// Register the live tap before reading the backlog; anything appended
	// while we read arrives on the tap and is merged by the subscription.
	sub := uc.broker.Subscribe(roomID, since)
	backlog, err := readRetry(ctx, func() ([]*entity.Message, error) {
		return uc.msgRepo.ListSince(ctx, roomID, since, 0)
	})
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.Seed(backlog)

	return sub, nil
}

// History returns stored messages for the room view, floored at the
// requester's joinedAt so pre-join history is never shown.
func (uc *MessageUseCase) History(ctx context.Context, userID, roomID string, since time.Time, limit int) ([]*entity.Message, error) {
	room, err := readRetry(ctx, func() (*entity.Room, error) {
		return uc.roomRepo.GetByID(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, errors.NotAParticipant(userID, roomID)
	}

	joined := uc.JoinedAt(ctx, userID, roomID)
	if since.Before(joined) {
		since = joined
	}

	return readRetry(ctx, func() ([]*entity.Message, error) {
		return uc.msgRepo.ListSince(ctx, roomID, since, limit)
	})
}

// Touch advances the user's last-seen mark to now. Called both when the
// room view opens and when it closes, matching the source behavior of
// counting messages that arrive during an active view as read.
func (uc *MessageUseCase) Touch(ctx context.Context, userID, roomID string) error {
	return uc.cursorRepo.Touch(ctx, userID, roomID, time.Now())
}

// Unread counts messages sent after the user's last-seen mark. A racing
// Touch or append may make the result stale by one; the next event corrects
// it.
func (uc *MessageUseCase) Unread(ctx context.Context, userID, roomID string) (int, error) {
	cursor, err := readRetry(ctx, func() (*entity.ReadCursor, error) {
		return uc.cursorRepo.Get(ctx, userID, roomID)
	})
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return 0, nil
		}
		return 0, err
	}

	return readRetry(ctx, func() (int, error) {
		return uc.msgRepo.CountAfter(ctx, roomID, cursor.LastSeenAt)
	})
}

// JoinedAt reports when the user joined the room. Defensive default: "now"
// when no cursor exists, which shows no history rather than failing.
func (uc *MessageUseCase) JoinedAt(ctx context.Context, userID, roomID string) time.Time {
	cursor, err := readRetry(ctx, func() (*entity.ReadCursor, error) {
		return uc.cursorRepo.Get(ctx, userID, roomID)
	})
	if err != nil {
		return time.Now()
	}
	return cursor.JoinedAt
}

// SubscribeRoomEvents opens the user's live room-list feed: one event per
// append to any room the user participates in.
func (uc *MessageUseCase) SubscribeRoomEvents(userID string) *stream.UserSubscription {
	return uc.broker.SubscribeUser(userID)
}
