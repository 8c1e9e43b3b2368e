package repository

import (
	"context"
	"time"

	"kurir/internal/domain/entity"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	// ListSince returns the room's messages with SentAt >= since in
	// ascending send order (arrival order for ties). limit <= 0 means all.
	ListSince(ctx context.Context, roomID string, since time.Time, limit int) ([]*entity.Message, error)
	CountAfter(ctx context.Context, roomID string, after time.Time) (int, error)
	// DeleteByRoom purges the room's entire log.
	DeleteByRoom(ctx context.Context, roomID string) error
}
