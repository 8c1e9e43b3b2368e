package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kurir/internal/domain/entity"
	"kurir/internal/domain/repository"
	"kurir/pkg/errors"
)

type firestoreRoomRepository struct {
	client *firestore.Client
}

func NewFirestoreRoomRepository(client *firestore.Client) repository.RoomRepository {
	return &firestoreRoomRepository{
		client: client,
	}
}

func (r *firestoreRoomRepository) Create(ctx context.Context, room *entity.Room) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}

	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now

	// The pair-key check and the write run in one transaction so two
	// concurrent first-sends cannot both commit a private room for the
	// same pair.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if room.PairKey != "" {
			query := r.client.Collection("rooms").Where("pairKey", "==", room.PairKey).Limit(1)
			iter := tx.Documents(query)
			_, err := iter.Next()
			if err == nil {
				return errors.ConcurrentCreate(room.PairKey, nil)
			}
			if err != iterator.Done {
				return err
			}
		}
		return tx.Set(r.client.Collection("rooms").Doc(room.ID), room)
	})
	if err != nil {
		if errors.Is(err, "CONCURRENT_CREATE") {
			return err
		}
		if status.Code(err) == codes.Unavailable {
			return errors.StoreUnavailable(err)
		}
		return errors.Internal("Failed to create room", err)
	}

	return nil
}

func (r *firestoreRoomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	doc, err := r.client.Collection("rooms").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.RoomNotFound(id, nil)
		}
		if status.Code(err) == codes.Unavailable {
			return nil, errors.StoreUnavailable(err)
		}
		return nil, errors.Internal("Failed to get room", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}

	return &room, nil
}

func (r *firestoreRoomRepository) Update(ctx context.Context, room *entity.Room) error {
	room.UpdatedAt = time.Now()

	_, err := r.client.Collection("rooms").Doc(room.ID).Set(ctx, room)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return errors.StoreUnavailable(err)
		}
		return errors.Internal("Failed to update room", err)
	}

	return nil
}

func (r *firestoreRoomRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Collection("rooms").Doc(id).Delete(ctx)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return errors.StoreUnavailable(err)
		}
		return errors.Internal("Failed to delete room", err)
	}

	return nil
}
