package entity

import "time"

// ReadCursor is the per-(user, room) read position. JoinedAt is fixed when
// the membership is established and bounds which history the user ever sees;
// LastSeenAt advances on every room open and close and drives unread counts.
//
// A user's cursors double as their membership index: listing them lists the
// rooms the user participates in without scanning the room collection.
type ReadCursor struct {
	UserID     string    `json:"user_id" firestore:"userId"`
	RoomID     string    `json:"room_id" firestore:"roomId"`
	JoinedAt   time.Time `json:"joined_at" firestore:"joinedAt"`
	LastSeenAt time.Time `json:"last_seen_at" firestore:"lastSeenAt"`
}
