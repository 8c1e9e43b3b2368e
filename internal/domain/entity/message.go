package entity

import "time"

// Message is an immutable entry in a room's append-only log. Content may be
// empty when an attachment reference is present. SentAt is server-assigned,
// monotonically non-decreasing within a room; ties keep arrival order.
type Message struct {
	ID            string    `json:"id" firestore:"id"`
	RoomID        string    `json:"room_id" firestore:"roomId"`
	SenderID      string    `json:"sender_id" firestore:"senderId"`
	Content       string    `json:"content" firestore:"content"`
	AttachmentURL string    `json:"attachment_url,omitempty" firestore:"attachmentUrl,omitempty"`
	SentAt        time.Time `json:"sent_at" firestore:"sentAt"`
}
