package testutil

import (
	"testing"
	"time"

	"github.com/eventmatch/chat-client/internal/models"
)

// Group builds a snapshot group fixture.
func Group(eventID int, name string, convs ...models.Conversation) models.EventConversations {
	return models.EventConversations{
		Event:         models.Event{ID: eventID, Name: name},
		Conversations: convs,
	}
}

// Conv builds a conversation fixture.
func Conv(matchID, unreadCount int) models.Conversation {
	return models.Conversation{
		MatchID:     matchID,
		Participant: models.Participant{ID: matchID * 10, Name: "participant"},
		UnreadCount: unreadCount,
	}
}

// Msg builds a message fixture.
func Msg(id, senderID int, content string) models.Message {
	return models.Message{
		ID:       id,
		SenderID: senderID,
		Content:  content,
		SentAt:   time.Now().UTC(),
	}
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
