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

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(roomID string) *firestore.CollectionRef {
	return r.client.Collection("rooms").Doc(roomID).Collection("messages")
}

func (r *firestoreMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	_, err := r.messages(message.RoomID).Doc(message.ID).Set(ctx, message)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return errors.StoreUnavailable(err)
		}
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) ListSince(ctx context.Context, roomID string, since time.Time, limit int) ([]*entity.Message, error) {
	query := r.messages(roomID).Where("sentAt", ">=", since).OrderBy("sentAt", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.Unavailable {
				return nil, errors.StoreUnavailable(err)
			}
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}

		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreMessageRepository) CountAfter(ctx context.Context, roomID string, after time.Time) (int, error) {
	docs, err := r.messages(roomID).Where("sentAt", ">", after).Documents(ctx).GetAll()
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return 0, errors.StoreUnavailable(err)
		}
		return 0, errors.Internal("Failed to count messages", err)
	}

	return len(docs), nil
}

func (r *firestoreMessageRepository) DeleteByRoom(ctx context.Context, roomID string) error {
	iter := r.messages(roomID).Documents(ctx)

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.Unavailable {
				return errors.StoreUnavailable(err)
			}
			return errors.Internal("Failed to iterate messages for deletion", err)
		}

		if _, err := doc.Ref.Delete(ctx); err != nil {
			return errors.Internal("Failed to delete message", err)
		}
	}

	return nil
}
