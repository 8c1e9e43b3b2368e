package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"kurir/internal/adapter/repository"
	"kurir/internal/infrastructure/stream"
	"kurir/internal/usecase"
)

type discardBlobStore struct{}

func (discardBlobStore) DeleteFile(ctx context.Context, fileURL string) error { return nil }

type fakeAttachmentStore struct {
	lastFileType string
}

func (f *fakeAttachmentStore) UploadAttachment(ctx context.Context, file io.Reader, fileType, roomID string) (string, error) {
	f.lastFileType = fileType
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://storage.googleapis.com/test-bucket/attachments/%s/blob.bin", roomID), nil
}

func (f *fakeAttachmentStore) GenerateSignedUploadURL(ctx context.Context, fileType, roomID string) (string, error) {
	f.lastFileType = fileType
	return fmt.Sprintf("https://storage.googleapis.com/test-bucket/attachments/%s/signed", roomID), nil
}

func newUseCases(t *testing.T) (*usecase.RoomUseCase, *usecase.MessageUseCase) {
	t.Helper()

	roomRepo := repository.NewMemoryRoomRepository()
	msgRepo := repository.NewMemoryMessageRepository()
	cursorRepo := repository.NewMemoryCursorRepository()
	broker := stream.NewBroker()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	messages := usecase.NewMessageUseCase(msgRepo, roomRepo, cursorRepo, broker, log)
	rooms := usecase.NewRoomUseCase(roomRepo, cursorRepo, msgRepo, messages, discardBlobStore{}, broker, log)

	return rooms, messages
}
