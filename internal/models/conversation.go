package models

import "time"

// Event is the parent grouping for conversations. Every match belongs to
// exactly one event.
type Event struct {
	ID   int    `json:"event_id"`
	Name string `json:"event_name"`
}

// Participant is the counterpart in a conversation.
type Participant struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// LastMessage is the preview shown in conversation lists.
type LastMessage struct {
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
	IsMine  bool      `json:"is_mine"`
}

// Conversation is one chat thread, identified by its match id.
type Conversation struct {
	MatchID            int          `json:"match_id"`
	Participant        Participant  `json:"participant"`
	LastMessage        *LastMessage `json:"last_message"`
	UnreadCount        int          `json:"unread_count"`
	IsBlocked          bool         `json:"is_blocked"`
	IsOtherUserBlocked bool         `json:"is_other_user_blocked"`
	IsEventExpired     bool         `json:"is_event_expired"`
}

// CanSend reports whether sending into this conversation is permitted.
// Blocking in either direction and event expiry all close the thread.
func (c *Conversation) CanSend() bool {
	return !c.IsBlocked && !c.IsOtherUserBlocked && !c.IsEventExpired
}

// EventConversations is one group of the full snapshot: an event and the
// conversations belonging to it.
type EventConversations struct {
	Event         Event          `json:"event"`
	Conversations []Conversation `json:"conversations"`
}

// ConversationDetail is the single-conversation snapshot: counterpart
// identity, status flags and the ordered message history.
type ConversationDetail struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}
