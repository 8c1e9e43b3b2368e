package entity

import (
	"sort"
	"strings"
	"time"
)

// Room is a conversation channel. A room is private when it has exactly two
// participants; at most one private room may exist per unordered user pair.
type Room struct {
	ID            string    `json:"id" firestore:"id"`
	Participants  []string  `json:"participants" firestore:"participants"`
	PairKey       string    `json:"-" firestore:"pairKey,omitempty"`
	CreatedAt     time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time `json:"updated_at" firestore:"updatedAt"`
	LastMessage   string    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"last_message_at" firestore:"lastMessageAt"`
}

func (r *Room) IsPrivate() bool {
	return len(r.Participants) == 2
}

func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// PairKeyFor canonicalizes an unordered user pair into a single key. Both
// orderings of the same two ids map to the same key, which is what the
// private-room dedup invariant is serialized on.
func PairKeyFor(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// RoomSummary is the room-list projection: the room plus the viewer's
// unread count, ordered by most recent activity.
type RoomSummary struct {
	Room   *Room `json:"room"`
	Unread int   `json:"unread"`
}
