package models

import "time"

// Message is immutable once created. IDs are server-assigned and unique
// within a conversation; they are also monotonic per conversation, so
// append-in-arrival-order preserves sent order.
type Message struct {
	ID       int        `json:"id"`
	SenderID int        `json:"sender_id"`
	Content  string     `json:"content"`
	SentAt   time.Time  `json:"sent_at"`
	ReadAt   *time.Time `json:"read_at,omitempty"`
	Liked    bool       `json:"liked,omitempty"`
}

// IsMine reports whether the message was authored by the given local user.
func (m *Message) IsMine(userID int) bool {
	return m.SenderID == userID
}
