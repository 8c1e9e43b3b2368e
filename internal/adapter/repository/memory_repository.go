package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"kurir/internal/domain/entity"
	"kurir/internal/domain/repository"
	"kurir/pkg/errors"
)

// In-memory drivers backing tests and local development. Mutex-guarded maps;
// the message slices keep arrival order so sentAt ties stay stable.

type MemoryRoomRepository struct {
	mu       sync.RWMutex
	rooms    map[string]*entity.Room
	pairKeys map[string]string // pairKey -> roomID, the private-room uniqueness guard
}

func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{
		rooms:    make(map[string]*entity.Room),
		pairKeys: make(map[string]string),
	}
}

func (r *MemoryRoomRepository) Create(ctx context.Context, room *entity.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room.PairKey != "" {
		if _, exists := r.pairKeys[room.PairKey]; exists {
			return errors.ConcurrentCreate(room.PairKey, nil)
		}
	}

	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now

	stored := *room
	stored.Participants = append([]string(nil), room.Participants...)
	r.rooms[room.ID] = &stored
	if room.PairKey != "" {
		r.pairKeys[room.PairKey] = room.ID
	}

	return nil
}

func (r *MemoryRoomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, errors.RoomNotFound(id, nil)
	}

	copied := *room
	copied.Participants = append([]string(nil), room.Participants...)
	return &copied, nil
}

func (r *MemoryRoomRepository) Update(ctx context.Context, room *entity.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; !ok {
		return errors.RoomNotFound(room.ID, nil)
	}

	room.UpdatedAt = time.Now()
	stored := *room
	stored.Participants = append([]string(nil), room.Participants...)
	r.rooms[room.ID] = &stored

	return nil
}

func (r *MemoryRoomRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok && room.PairKey != "" {
		delete(r.pairKeys, room.PairKey)
	}
	delete(r.rooms, id)

	return nil
}

type MemoryMessageRepository struct {
	mu   sync.RWMutex
	logs map[string][]*entity.Message // roomID -> append-only log
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		logs: make(map[string][]*entity.Message),
	}
}

func (r *MemoryMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	stored := *message
	r.logs[message.RoomID] = append(r.logs[message.RoomID], &stored)

	return nil
}

func (r *MemoryMessageRepository) ListSince(ctx context.Context, roomID string, since time.Time, limit int) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var messages []*entity.Message
	for _, m := range r.logs[roomID] {
		if m.SentAt.Before(since) {
			continue
		}
		copied := *m
		messages = append(messages, &copied)
		if limit > 0 && len(messages) == limit {
			break
		}
	}

	return messages, nil
}

func (r *MemoryMessageRepository) CountAfter(ctx context.Context, roomID string, after time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, m := range r.logs[roomID] {
		if m.SentAt.After(after) {
			count++
		}
	}

	return count, nil
}

func (r *MemoryMessageRepository) DeleteByRoom(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.logs, roomID)

	return nil
}

type MemoryCursorRepository struct {
	mu      sync.RWMutex
	cursors map[string]map[string]*entity.ReadCursor // userID -> roomID -> cursor
}

func NewMemoryCursorRepository() *MemoryCursorRepository {
	return &MemoryCursorRepository{
		cursors: make(map[string]map[string]*entity.ReadCursor),
	}
}

func (r *MemoryCursorRepository) Upsert(ctx context.Context, cursor *entity.ReadCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursors[cursor.UserID] == nil {
		r.cursors[cursor.UserID] = make(map[string]*entity.ReadCursor)
	}
	stored := *cursor
	r.cursors[cursor.UserID][cursor.RoomID] = &stored

	return nil
}

func (r *MemoryCursorRepository) Get(ctx context.Context, userID, roomID string) (*entity.ReadCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cursor, ok := r.cursors[userID][roomID]
	if !ok {
		return nil, errors.NotFound("Read cursor", nil)
	}

	copied := *cursor
	return &copied, nil
}

func (r *MemoryCursorRepository) Touch(ctx context.Context, userID, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursor, ok := r.cursors[userID][roomID]
	if !ok {
		return nil
	}
	cursor.LastSeenAt = at

	return nil
}

func (r *MemoryCursorRepository) ListByUser(ctx context.Context, userID string) ([]*entity.ReadCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cursors []*entity.ReadCursor
	for _, cursor := range r.cursors[userID] {
		copied := *cursor
		cursors = append(cursors, &copied)
	}

	return cursors, nil
}

func (r *MemoryCursorRepository) Delete(ctx context.Context, userID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.cursors[userID], roomID)

	return nil
}

var (
	_ repository.RoomRepository    = (*MemoryRoomRepository)(nil)
	_ repository.MessageRepository = (*MemoryMessageRepository)(nil)
	_ repository.CursorRepository  = (*MemoryCursorRepository)(nil)
)
