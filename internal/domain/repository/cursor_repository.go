package repository

import (
	"context"
	"time"

	"kurir/internal/domain/entity"
)

type CursorRepository interface {
	Upsert(ctx context.Context, cursor *entity.ReadCursor) error
	Get(ctx context.Context, userID, roomID string) (*entity.ReadCursor, error)
	// Touch advances LastSeenAt. Missing cursors are a no-op: the membership
	// may already be gone by the time a stale client calls in.
	Touch(ctx context.Context, userID, roomID string, at time.Time) error
	// ListByUser is the membership index: every room the user participates
	// in, one cursor each.
	ListByUser(ctx context.Context, userID string) ([]*entity.ReadCursor, error)
	Delete(ctx context.Context, userID, roomID string) error
}
