package stream

import (
	"sync"
	"time"

	"kurir/internal/domain/entity"
)

// Broker fans out appended messages to live subscribers. Two feed kinds:
// per-room message subscriptions (the chat view) and per-user room events
// (the room-list / unread aggregate). All delivery is in-process; external
// consumers such as notification dispatch attach like any other subscriber.
type Broker struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscription]struct{}
	users map[string]map[*UserSubscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		rooms: make(map[string]map[*Subscription]struct{}),
		users: make(map[string]map[*UserSubscription]struct{}),
	}
}

// RoomEvent is pushed to user feeds on every append to a room the user
// participates in.
type RoomEvent struct {
	RoomID  string          `json:"room_id"`
	Message *entity.Message `json:"message"`
}

// Subscribe registers a live tap on a room. The subscription buffers live
// appends internally until Seed is called with the stored backlog; this
// register-then-load order is what makes the feed gapless. The caller must
// call Seed (or Cancel) after registering.
func (b *Broker) Subscribe(roomID string, since time.Time) *Subscription {
	s := &Subscription{
		broker:  b,
		roomID:  roomID,
		since:   since,
		ch:      make(chan *entity.Message),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		seen:    make(map[string]struct{}),
	}
	s.C = s.ch
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[*Subscription]struct{})
	}
	b.rooms[roomID][s] = struct{}{}
	b.mu.Unlock()

	go s.pump()

	return s
}

// SubscribeUser registers a live room-event feed for one user. No replay:
// the room list is loaded through the store and kept fresh by these events.
func (b *Broker) SubscribeUser(userID string) *UserSubscription {
	s := &UserSubscription{
		broker:  b,
		userID:  userID,
		ch:      make(chan RoomEvent),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.C = s.ch
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.users[userID] == nil {
		b.users[userID] = make(map[*UserSubscription]struct{})
	}
	b.users[userID][s] = struct{}{}
	b.mu.Unlock()

	go s.pump()

	return s
}

// Publish delivers an appended message to the room's subscribers and a room
// event to every participant's user feed. Callers serialize Publish per room
// (the append lock), which is what gives each subscriber send-order delivery.
func (b *Broker) Publish(message *entity.Message, participants []string) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.rooms[message.RoomID]))
	for s := range b.rooms[message.RoomID] {
		subs = append(subs, s)
	}
	feeds := make([]*UserSubscription, 0)
	for _, userID := range participants {
		for s := range b.users[userID] {
			feeds = append(feeds, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.deliver(message)
	}
	event := RoomEvent{RoomID: message.RoomID, Message: message}
	for _, s := range feeds {
		s.deliver(event)
	}
}

// CloseRoom cancels every live subscription on a room. Called on teardown.
func (b *Broker) CloseRoom(roomID string) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.rooms[roomID]))
	for s := range b.rooms[roomID] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.Cancel()
	}
}

func (b *Broker) removeRoomSub(s *Subscription) {
	b.mu.Lock()
	if set, ok := b.rooms[s.roomID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.rooms, s.roomID)
		}
	}
	b.mu.Unlock()
}

func (b *Broker) removeUserSub(s *UserSubscription) {
	b.mu.Lock()
	if set, ok := b.users[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.users, s.userID)
		}
	}
	b.mu.Unlock()
}

// Subscription is a live, ordered, cancellable message feed for one room.
// Messages arrive on C in non-decreasing SentAt order with no gaps for the
// subscription's since cutoff; message IDs already delivered within this
// subscription's lifetime are suppressed.
type Subscription struct {
	C <-chan *entity.Message

	broker *Broker
	roomID string
	since  time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*entity.Message
	prelive []*entity.Message
	seen    map[string]struct{}
	seeded  bool
	closed  bool

	ch      chan *entity.Message
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Seed replays the stored backlog, then any live appends that raced the
// backlog load, then switches the subscription live. Backlog entries and
// raced appends are merged by message ID, so the boundary overlap between
// "already stored" and "published while loading" cannot duplicate.
func (s *Subscription) Seed(backlog []*entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.seeded {
		return
	}

	for _, m := range backlog {
		s.enqueueLocked(m)
	}
	// Anything in prelive but not in the backlog was appended after the
	// backlog snapshot, so it sorts after it.
	for _, m := range s.prelive {
		s.enqueueLocked(m)
	}
	s.prelive = nil
	s.seeded = true
	s.cond.Broadcast()
}

func (s *Subscription) enqueueLocked(m *entity.Message) {
	if m.SentAt.Before(s.since) {
		return
	}
	if _, dup := s.seen[m.ID]; dup {
		return
	}
	s.seen[m.ID] = struct{}{}
	s.queue = append(s.queue, m)
}

func (s *Subscription) deliver(m *entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.seeded {
		s.prelive = append(s.prelive, m)
		return
	}
	before := len(s.queue)
	s.enqueueLocked(m)
	if len(s.queue) != before {
		s.cond.Signal()
	}
}

// Cancel stops the subscription. Idempotent, safe from any goroutine, and
// synchronous: once Cancel returns, nothing more is sent on C and the pump
// goroutine has exited.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.removeRoomSub(s)

		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()

		close(s.done)
		<-s.stopped
		close(s.ch)
	})
}

func (s *Subscription) pump() {
	defer close(s.stopped)

	for {
		s.mu.Lock()
		for !s.closed && (!s.seeded || len(s.queue) == 0) {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		m := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- m:
		case <-s.done:
			return
		}
	}
}

// UserSubscription is the live room-event feed for one user.
type UserSubscription struct {
	C <-chan RoomEvent

	broker *Broker
	userID string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []RoomEvent
	closed bool

	ch      chan RoomEvent
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (s *UserSubscription) deliver(event RoomEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.queue = append(s.queue, event)
	s.cond.Signal()
}

// Cancel mirrors Subscription.Cancel: idempotent and synchronous.
func (s *UserSubscription) Cancel() {
	s.once.Do(func() {
		s.broker.removeUserSub(s)

		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()

		close(s.done)
		<-s.stopped
		close(s.ch)
	})
}

func (s *UserSubscription) pump() {
	defer close(s.stopped)

	for {
		s.mu.Lock()
		for !s.closed && len(s.queue) == 0 {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- event:
		case <-s.done:
			return
		}
	}
}
