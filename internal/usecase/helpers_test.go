package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"kurir/internal/adapter/repository"
	"kurir/internal/domain/entity"
	domainrepo "kurir/internal/domain/repository"
	"kurir/internal/infrastructure/stream"
	"kurir/pkg/errors"
)

// fakeBlobStore records deletions and can be told to fail.
type fakeBlobStore struct {
	mu      sync.Mutex
	deleted []string
	fail    bool
}

func (f *fakeBlobStore) DeleteFile(ctx context.Context, fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.Internal("blob store down", nil)
	}
	f.deleted = append(f.deleted, fileURL)
	return nil
}

func (f *fakeBlobStore) deletedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// flakyRoomRepo fails GetByID with a transient store error a fixed number of
// times before recovering.
type flakyRoomRepo struct {
	domainrepo.RoomRepository

	mu       sync.Mutex
	failures int
}

func (r *flakyRoomRepo) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return nil, errors.StoreUnavailable(nil)
	}
	r.mu.Unlock()
	return r.RoomRepository.GetByID(ctx, id)
}

type testEnv struct {
	rooms    *RoomUseCase
	messages *MessageUseCase
	broker   *stream.Broker
	blobs    *fakeBlobStore

	roomRepo   domainrepo.RoomRepository
	msgRepo    domainrepo.MessageRepository
	cursorRepo domainrepo.CursorRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRoomRepo(t, repository.NewMemoryRoomRepository())
}

func newTestEnvWithRoomRepo(t *testing.T, roomRepo domainrepo.RoomRepository) *testEnv {
	t.Helper()

	msgRepo := repository.NewMemoryMessageRepository()
	cursorRepo := repository.NewMemoryCursorRepository()
	broker := stream.NewBroker()
	blobs := &fakeBlobStore{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	messages := NewMessageUseCase(msgRepo, roomRepo, cursorRepo, broker, log)
	rooms := NewRoomUseCase(roomRepo, cursorRepo, msgRepo, messages, blobs, broker, log)

	return &testEnv{
		rooms:      rooms,
		messages:   messages,
		broker:     broker,
		blobs:      blobs,
		roomRepo:   roomRepo,
		msgRepo:    msgRepo,
		cursorRepo: cursorRepo,
	}
}

func drain(t *testing.T, ch <-chan *entity.Message, n int) []*entity.Message {
	t.Helper()

	var out []*entity.Message
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("feed closed after %d of %d messages", len(out), n)
			}
			out = append(out, m)
		case <-timeout:
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}
