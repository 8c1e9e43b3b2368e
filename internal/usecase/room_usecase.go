package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"kurir/internal/domain/entity"
	"kurir/internal/domain/repository"
	"kurir/internal/infrastructure/stream"
	"kurir/pkg/errors"
)

// BlobStore releases attachment blobs during room teardown. Implemented by
// the Cloud Storage client; tests plug in fakes.
type BlobStore interface {
	DeleteFile(ctx context.Context, fileURL string) error
}

// attachmentCleanupWindow bounds the best-effort blob deletion pass during
// teardown. Failures inside the window are logged and skipped.
const attachmentCleanupWindow = 30 * time.Second

type RoomUseCase struct {
	roomRepo   repository.RoomRepository
	cursorRepo repository.CursorRepository
	msgRepo    repository.MessageRepository
	messages   *MessageUseCase
	blobs      BlobStore
	broker     *stream.Broker
	log        *slog.Logger

	// One mutex per canonical user pair. Serializes the check-then-create
	// in OpenOrCreate so two concurrent first-sends cannot both create a
	// private room for the same pair.
	pairLocks sync.Map
}

func NewRoomUseCase(
	roomRepo repository.RoomRepository,
	cursorRepo repository.CursorRepository,
	msgRepo repository.MessageRepository,
	messages *MessageUseCase,
	blobs BlobStore,
	broker *stream.Broker,
	log *slog.Logger,
) *RoomUseCase {
	return &RoomUseCase{
		roomRepo:   roomRepo,
		cursorRepo: cursorRepo,
		msgRepo:    msgRepo,
		messages:   messages,
		blobs:      blobs,
		broker:     broker,
		log:        log,
	}
}

func (uc *RoomUseCase) pairLock(pairKey string) *sync.Mutex {
	lock, _ := uc.pairLocks.LoadOrStore(pairKey, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// CreateRoom persists a room and a read cursor for every participant, with
// joinedAt = lastSeenAt = now. Fewer than two distinct participants is a
// usage error.
func (uc *RoomUseCase) CreateRoom(ctx context.Context, participants []string) (*entity.Room, error) {
	distinct := make([]string, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		distinct = append(distinct, p)
	}
	if len(distinct) < 2 {
		return nil, errors.InvalidParticipants("a room needs at least two distinct participants")
	}

	room := &entity.Room{
		Participants: distinct,
	}
	if len(distinct) == 2 {
		room.PairKey = entity.PairKeyFor(distinct[0], distinct[1])
	}

	if err := uc.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	now := time.Now()
	for _, p := range distinct {
		cursor := &entity.ReadCursor{
			UserID:     p,
			RoomID:     room.ID,
			JoinedAt:   now,
			LastSeenAt: now,
		}
		if err := uc.cursorRepo.Upsert(ctx, cursor); err != nil {
			return nil, err
		}
	}

	return room, nil
}

// Participants returns the room's current participant set.
func (uc *RoomUseCase) Participants(ctx context.Context, roomID string) ([]string, error) {
	room, err := uc.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room.Participants, nil
}

// RoomForParticipant loads a room on behalf of a user, rejecting non-members.
func (uc *RoomUseCase) RoomForParticipant(ctx context.Context, userID, roomID string) (*entity.Room, error) {
	room, err := uc.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, errors.NotAParticipant(userID, roomID)
	}
	return room, nil
}

// FindPrivateRoom resolves the at-most-one private room between two users by
// intersecting their membership indexes. Never scans the room collection.
func (uc *RoomUseCase) FindPrivateRoom(ctx context.Context, userA, userB string) (*entity.Room, error) {
	cursorsA, err := readRetry(ctx, func() ([]*entity.ReadCursor, error) {
		return uc.cursorRepo.ListByUser(ctx, userA)
	})
	if err != nil {
		return nil, err
	}
	cursorsB, err := readRetry(ctx, func() ([]*entity.ReadCursor, error) {
		return uc.cursorRepo.ListByUser(ctx, userB)
	})
	if err != nil {
		return nil, err
	}

	roomsOfA := make(map[string]struct{}, len(cursorsA))
	for _, c := range cursorsA {
		roomsOfA[c.RoomID] = struct{}{}
	}

	for _, c := range cursorsB {
		if _, shared := roomsOfA[c.RoomID]; !shared {
			continue
		}
		room, err := uc.getRoom(ctx, c.RoomID)
		if err != nil {
			if errors.Is(err, "ROOM_NOT_FOUND") {
				// Stale index entry; the room was torn down.
				continue
			}
			return nil, err
		}
		if room.IsPrivate() && room.HasParticipant(userA) && room.HasParticipant(userB) {
			return room, nil
		}
	}

	return nil, errors.NotFound("Private room", nil)
}

// OpenOrCreate is the first-send path: reuse the existing private room when
// one exists, otherwise create one, then append the first message. The whole
// check-then-act is serialized per unordered pair.
func (uc *RoomUseCase) OpenOrCreate(ctx context.Context, senderID, recipientID string, input SendMessageInput) (*entity.Room, *entity.Message, error) {
	if senderID == recipientID {
		return nil, nil, errors.InvalidParticipants("cannot open a conversation with yourself")
	}
	if recipientID == "" {
		return nil, nil, errors.InvalidParticipants("recipient is required")
	}

	pairKey := entity.PairKeyFor(senderID, recipientID)
	lock := uc.pairLock(pairKey)
	lock.Lock()
	defer lock.Unlock()

	room, err := uc.FindPrivateRoom(ctx, senderID, recipientID)
	if err != nil && !errors.Is(err, "NOT_FOUND") {
		return nil, nil, err
	}

	if room == nil || err != nil {
		room, err = uc.CreateRoom(ctx, []string{senderID, recipientID})
		if errors.Is(err, "CONCURRENT_CREATE") {
			// Another instance won the pair; adopt its room.
			uc.log.Warn("concurrent private room creation, rechecking", "pair", pairKey)
			room, err = uc.FindPrivateRoom(ctx, senderID, recipientID)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	message, err := uc.messages.Send(ctx, room.ID, senderID, input)
	if err != nil {
		return nil, nil, err
	}

	return room, message, nil
}

// RoomList materializes the user's conversation list from their membership
// index, most recent activity first, with unread counts.
func (uc *RoomUseCase) RoomList(ctx context.Context, userID string) ([]*entity.RoomSummary, error) {
	cursors, err := readRetry(ctx, func() ([]*entity.ReadCursor, error) {
		return uc.cursorRepo.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]*entity.RoomSummary, 0, len(cursors))
	for _, cursor := range cursors {
		room, err := uc.getRoom(ctx, cursor.RoomID)
		if err != nil {
			if errors.Is(err, "ROOM_NOT_FOUND") {
				continue
			}
			return nil, err
		}

		unread, err := readRetry(ctx, func() (int, error) {
			return uc.msgRepo.CountAfter(ctx, cursor.RoomID, cursor.LastSeenAt)
		})
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, &entity.RoomSummary{Room: room, Unread: unread})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Room.LastMessageAt.After(summaries[j].Room.LastMessageAt)
	})

	return summaries, nil
}

// Leave removes the user from the room permanently (departure, not
// navigation). Idempotent: a non-member, or a room already gone, is a no-op
// success. Emptying the participant set tears the room down.
func (uc *RoomUseCase) Leave(ctx context.Context, userID, roomID string) error {
	room, err := uc.getRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, "ROOM_NOT_FOUND") {
			return nil
		}
		return err
	}

	if err := uc.cursorRepo.Delete(ctx, userID, roomID); err != nil {
		return err
	}

	if !room.HasParticipant(userID) {
		return nil
	}

	remaining := make([]string, 0, len(room.Participants)-1)
	for _, p := range room.Participants {
		if p != userID {
			remaining = append(remaining, p)
		}
	}

	if len(remaining) > 0 {
		room.Participants = remaining
		return uc.roomRepo.Update(ctx, room)
	}

	return uc.teardown(ctx, room)
}

// teardown purges an empty room: messages, the room record itself, any live
// subscribers, and — best effort — the attachment blobs its messages
// referenced. Blob failures are logged and never block the teardown.
func (uc *RoomUseCase) teardown(ctx context.Context, room *entity.Room) error {
	messages, err := uc.msgRepo.ListSince(ctx, room.ID, time.Time{}, 0)
	if err != nil {
		uc.log.Warn("could not list messages before teardown, attachments may leak",
			"room", room.ID, "error", err)
	}

	if err := uc.msgRepo.DeleteByRoom(ctx, room.ID); err != nil {
		return err
	}
	if err := uc.roomRepo.Delete(ctx, room.ID); err != nil {
		return err
	}

	uc.broker.CloseRoom(room.ID)

	// Release the room's per-append and per-pair lock entries so a
	// long-lived process does not accumulate them. The store's pair-key
	// uniqueness still guards a create racing this delete.
	uc.messages.dropAppendState(room.ID)
	if room.PairKey != "" {
		uc.pairLocks.Delete(room.PairKey)
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), attachmentCleanupWindow)
	defer cancel()
	for _, m := range messages {
		if m.AttachmentURL == "" {
			continue
		}
		if err := uc.blobs.DeleteFile(cleanupCtx, m.AttachmentURL); err != nil {
			cleanupErr := errors.AttachmentCleanup(m.AttachmentURL, err)
			uc.log.Error("attachment cleanup failed", "room", room.ID, "error", cleanupErr)
		}
	}

	uc.log.Info("room torn down", "room", room.ID, "messages", len(messages))
	return nil
}

func (uc *RoomUseCase) getRoom(ctx context.Context, roomID string) (*entity.Room, error) {
	return readRetry(ctx, func() (*entity.Room, error) {
		return uc.roomRepo.GetByID(ctx, roomID)
	})
}

// readRetry retries a read once when the store reports a transient outage.
// Writes never come through here; their errors surface to the caller.
func readRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	value, err := fn()
	if err != nil && errors.Is(err, "STORE_UNAVAILABLE") {
		if ctx.Err() != nil {
			return value, err
		}
		value, err = fn()
	}
	return value, err
}
