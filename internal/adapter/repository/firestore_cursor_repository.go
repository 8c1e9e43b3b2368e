package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kurir/internal/domain/entity"
	"kurir/internal/domain/repository"
	"kurir/pkg/errors"
)

// Cursors live under users/{uid}/rooms/{roomID}. The subcollection is the
// per-user membership index: listing it yields the user's rooms without
// touching the rooms collection.
type firestoreCursorRepository struct {
	client *firestore.Client
}

func NewFirestoreCursorRepository(client *firestore.Client) repository.CursorRepository {
	return &firestoreCursorRepository{
		client: client,
	}
}

func (r *firestoreCursorRepository) doc(userID, roomID string) *firestore.DocumentRef {
	return r.client.Collection("users").Doc(userID).Collection("rooms").Doc(roomID)
}

func (r *firestoreCursorRepository) Upsert(ctx context.Context, cursor *entity.ReadCursor) error {
	_, err := r.doc(cursor.UserID, cursor.RoomID).Set(ctx, cursor)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return errors.StoreUnavailable(err)
		}
		return errors.Internal("Failed to save read cursor", err)
	}

	return nil
}

func (r *firestoreCursorRepository) Get(ctx context.Context, userID, roomID string) (*entity.ReadCursor, error) {
	doc, err := r.doc(userID, roomID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Read cursor", nil)
		}
		if status.Code(err) == codes.Unavailable {
			return nil, errors.StoreUnavailable(err)
		}
		return nil, errors.Internal("Failed to get read cursor", err)
	}

	var cursor entity.ReadCursor
	if err := doc.DataTo(&cursor); err != nil {
		return nil, errors.Internal("Failed to parse read cursor data", err)
	}

	return &cursor, nil
}

func (r *firestoreCursorRepository) Touch(ctx context.Context, userID, roomID string, at time.Time) error {
	_, err := r.doc(userID, roomID).Update(ctx, []firestore.Update{
		{Path: "lastSeenAt", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if status.Code(err) == codes.Unavailable {
			return errors.StoreUnavailable(err)
		}
		return errors.Internal("Failed to touch read cursor", err)
	}

	return nil
}

func (r *firestoreCursorRepository) ListByUser(ctx context.Context, userID string) ([]*entity.ReadCursor, error) {
	iter := r.client.Collection("users").Doc(userID).Collection("rooms").Documents(ctx)
	var cursors []*entity.ReadCursor

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.Unavailable {
				return nil, errors.StoreUnavailable(err)
			}
			return nil, errors.Internal("Failed to iterate read cursors", err)
		}

		var cursor entity.ReadCursor
		if err := doc.DataTo(&cursor); err != nil {
			return nil, errors.Internal("Failed to parse read cursor data", err)
		}

		cursors = append(cursors, &cursor)
	}

	return cursors, nil
}

func (r *firestoreCursorRepository) Delete(ctx context.Context, userID, roomID string) error {
	_, err := r.doc(userID, roomID).Delete(ctx)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return errors.StoreUnavailable(err)
		}
		return errors.Internal("Failed to delete read cursor", err)
	}

	return nil
}
