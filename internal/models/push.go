package models

import "time"

// Room references carried by join/leave commands.
type ChatRoomRef struct {
	MatchID int `json:"match_id"`
}

type EventRoomRef struct {
	EventID int `json:"event_id"`
}

// NewMessagePush is delivered on chat:newMessage.
type NewMessagePush struct {
	MatchID int     `json:"match_id"`
	Message Message `json:"message"`
}

// TypingPush is delivered on chat:typing and also sent outbound for the
// local user's typing transitions.
type TypingPush struct {
	MatchID  int  `json:"match_id"`
	UserID   int  `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

// ConversationUpdatePush is delivered on chat:conversationUpdate when a
// conversation gains a new last message.
type ConversationUpdatePush struct {
	MatchID     int         `json:"match_id"`
	LastMessage LastMessage `json:"last_message"`
}

// MessageReadPush is delivered on chat:messageRead when the counterpart has
// read the thread.
type MessageReadPush struct {
	MatchID int       `json:"match_id"`
	ReadAt  time.Time `json:"read_at"`
}

// UserJoinedPush is delivered on event:userJoined when a new participant
// registers for an event the client has joined.
type UserJoinedPush struct {
	EventID     int         `json:"event_id"`
	Participant Participant `json:"participant"`
}

// NewMatchPush is delivered on match:new. The conversation it announces is
// unknown to any earlier snapshot.
type NewMatchPush struct {
	MatchID     int         `json:"match_id"`
	EventID     int         `json:"event_id"`
	Participant Participant `json:"participant"`
}
