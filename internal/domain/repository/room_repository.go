package repository

import (
	"context"

	"kurir/internal/domain/entity"
)

type RoomRepository interface {
	// Create persists a new room. For private rooms the driver must reject a
	// second room with the same PairKey with a CONCURRENT_CREATE error.
	Create(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	Update(ctx context.Context, room *entity.Room) error
	Delete(ctx context.Context, id string) error
}
