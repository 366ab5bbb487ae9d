package models

import "testing"

func TestCanSend(t *testing.T) {
	tests := []struct {
		name string
		conv Conversation
		want bool
	}{
		{"open conversation", Conversation{}, true},
		{"blocked by me", Conversation{IsBlocked: true}, false},
		{"blocked by them", Conversation{IsOtherUserBlocked: true}, false},
		{"event expired", Conversation{IsEventExpired: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conv.CanSend(); got != tt.want {
				t.Errorf("CanSend() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMine(t *testing.T) {
	m := Message{ID: 1, SenderID: 42}
	if !m.IsMine(42) {
		t.Error("IsMine(42) = false for own message")
	}
	if m.IsMine(7) {
		t.Error("IsMine(7) = true for someone else's message")
	}
}
