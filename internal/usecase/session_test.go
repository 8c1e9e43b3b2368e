package usecase

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"kurir/pkg/errors"
)

func newTestSession(env *testEnv, userID string) *Session {
	return NewSession(userID, env.rooms, env.messages)
}

func TestSessionStartsClosed(t *testing.T) {
	env := newTestEnv(t)
	s := newTestSession(env, "alice")

	if s.State() != SessionClosed {
		t.Fatalf("got %v, want closed", s.State())
	}
	if _, err := s.OpenRoom(context.Background(), "any"); !errors.Is(err, "INVALID_STATE") {
		t.Errorf("OpenRoom from closed: got %v, want INVALID_STATE", err)
	}
	if _, err := s.Send(context.Background(), SendMessageInput{Content: "hi"}); !errors.Is(err, "INVALID_STATE") {
		t.Errorf("Send from closed: got %v, want INVALID_STATE", err)
	}
}

func TestSessionPendingConversationMaterializesOnFirstSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := newTestSession(env, "alice")

	if _, err := s.OpenList(ctx); err != nil {
		t.Fatalf("OpenList: %v", err)
	}

	feed, pending, err := s.StartConversation(ctx, "bob")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if !pending || feed != nil {
		t.Fatalf("expected pending conversation, got pending=%v feed=%v", pending, feed)
	}
	if s.State() != SessionPendingNew {
		t.Fatalf("got state %v, want pending_new", s.State())
	}

	// No room exists yet.
	if _, err := env.rooms.FindPrivateRoom(ctx, "alice", "bob"); !errors.Is(err, "NOT_FOUND") {
		t.Fatalf("room created before first send: %v", err)
	}

	message, err := s.Send(ctx, SendMessageInput{Content: "hi bob"})
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if s.State() != SessionActiveRoom {
		t.Fatalf("got state %v, want active_room", s.State())
	}
	if s.ActiveRoomID() != message.RoomID {
		t.Errorf("active room %s, message room %s", s.ActiveRoomID(), message.RoomID)
	}

	// The first message arrives on the promoted feed.
	got := drain(t, s.Feed(), 1)
	if got[0].ID != message.ID {
		t.Errorf("feed delivered %s, want %s", got[0].ID, message.ID)
	}

	if _, err := env.rooms.FindPrivateRoom(ctx, "alice", "bob"); err != nil {
		t.Errorf("room missing after first send: %v", err)
	}
}

func TestSessionFailedPendingSendStaysPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := newTestSession(env, "alice")

	if _, err := s.OpenList(ctx); err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	if _, _, err := s.StartConversation(ctx, "bob"); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	// An empty send is rejected and must not create a room or change state.
	if _, err := s.Send(ctx, SendMessageInput{}); err == nil {
		t.Fatal("empty send accepted")
	}
	if s.State() != SessionPendingNew {
		t.Fatalf("got state %v, want pending_new", s.State())
	}
	if _, err := env.rooms.FindPrivateRoom(ctx, "alice", "bob"); !errors.Is(err, "NOT_FOUND") {
		t.Errorf("failed send created a room: %v", err)
	}

	// The retry succeeds from the same state.
	if _, err := s.Send(ctx, SendMessageInput{Content: "hi"}); err != nil {
		t.Fatalf("retry Send: %v", err)
	}
	if s.State() != SessionActiveRoom {
		t.Errorf("got state %v, want active_room", s.State())
	}
}

func TestSessionRacingFirstSendsKeepOneFeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	baseline := runtime.NumGoroutine()

	s := newTestSession(env, "alice")
	if _, err := s.OpenList(ctx); err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	if _, _, err := s.StartConversation(ctx, "bob"); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	// Both sends observe the pending state; only one promotion may install
	// its subscription, the other must be discarded, not leaked.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Send(ctx, SendMessageInput{Content: "hi"}); err != nil {
				t.Errorf("Send %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if s.State() != SessionActiveRoom {
		t.Fatalf("got state %v, want active_room", s.State())
	}

	room, err := env.rooms.FindPrivateRoom(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("FindPrivateRoom: %v", err)
	}
	history, err := env.messages.History(ctx, "alice", room.ID, time.Time{}, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("got %d messages, want 2 in one room", len(history))
	}

	s.Close(ctx)

	// Every subscription pump must have exited; a leaked one never does.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= baseline {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("goroutines leaked: %d running, baseline %d", runtime.NumGoroutine(), baseline)
}

func TestSessionStartReusesExistingRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, _, err := env.rooms.OpenOrCreate(ctx, "bob", "alice", SendMessageInput{Content: "hello alice"})
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	s := newTestSession(env, "alice")
	if _, err := s.OpenList(ctx); err != nil {
		t.Fatalf("OpenList: %v", err)
	}

	feed, pending, err := s.StartConversation(ctx, "bob")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if pending {
		t.Fatal("existing room reported as pending")
	}
	if s.ActiveRoomID() != room.ID {
		t.Errorf("active room %s, want %s", s.ActiveRoomID(), room.ID)
	}

	// The feed replays bob's message from alice's join time.
	got := drain(t, feed, 1)
	if got[0].Content != "hello alice" {
		t.Errorf("feed delivered %q", got[0].Content)
	}
}

func TestSessionCloseRoomReturnsToListAndMarksRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, _, err := env.rooms.OpenOrCreate(ctx, "bob", "alice", SendMessageInput{Content: "ping"})
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	s := newTestSession(env, "alice")
	if _, err := s.OpenList(ctx); err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	feed, err := s.OpenRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}
	drain(t, feed, 1)

	summaries, err := s.OpenList(ctx)
	if err != nil {
		t.Fatalf("OpenList after close: %v", err)
	}
	if s.State() != SessionRoomList {
		t.Fatalf("got state %v, want room_list", s.State())
	}
	if len(summaries) != 1 || summaries[0].Unread != 0 {
		t.Errorf("room closed while viewed should be fully read: %+v", summaries)
	}

	// The old feed is dead after navigation.
	if _, ok := <-feed; ok {
		t.Error("feed still open after leaving the view")
	}

	// Navigation is not departure: alice is still a member.
	if _, err := env.rooms.RoomForParticipant(ctx, "alice", room.ID); err != nil {
		t.Errorf("membership lost on navigation: %v", err)
	}
}

func TestSessionLeaveIsDeparture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, _, err := env.rooms.OpenOrCreate(ctx, "bob", "alice", SendMessageInput{Content: "ping"})
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	s := newTestSession(env, "alice")
	if _, err := s.OpenList(ctx); err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	if _, err := s.OpenRoom(ctx, room.ID); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	if err := s.Leave(ctx); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if s.State() != SessionRoomList {
		t.Fatalf("got state %v, want room_list", s.State())
	}

	participants, err := env.rooms.Participants(ctx, room.ID)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(participants) != 1 || participants[0] != "bob" {
		t.Errorf("got participants %v, want [bob]", participants)
	}
}

func TestSessionCloseFromAnyState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, _, err := env.rooms.OpenOrCreate(ctx, "bob", "alice", SendMessageInput{Content: "ping"})
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	s := newTestSession(env, "alice")
	if _, err := s.OpenList(ctx); err != nil {
		t.Fatalf("OpenList: %v", err)
	}
	feed, err := s.OpenRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}
	drain(t, feed, 1)

	s.Close(ctx)
	if s.State() != SessionClosed {
		t.Fatalf("got state %v, want closed", s.State())
	}
	if _, ok := <-feed; ok {
		t.Error("feed still open after Close")
	}

	// Closing twice is harmless.
	s.Close(ctx)
}
