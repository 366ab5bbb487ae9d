package chat

import (
	"sync"
	"testing"

	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/socket"
)

func TestNotifierJoinDiscipline(t *testing.T) {
	conn := newFakeConn()
	n := NewNotifier(conn, nil)
	defer n.Close()

	if err := n.Join(3); err != nil {
		t.Fatalf("Join: %v", err)
	}
	// Redundant join is skipped.
	if err := n.Join(3); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if got := conn.framesFor(socket.EventEventJoin); len(got) != 1 {
		t.Fatalf("join frames = %d, want 1", len(got))
	}

	// Switching events leaves the previous room first.
	if err := n.Join(4); err != nil {
		t.Fatalf("switch: %v", err)
	}
	frames := conn.frames()
	want := []emittedFrame{
		{event: socket.EventEventJoin, payload: models.EventRoomRef{EventID: 3}},
		{event: socket.EventEventLeave, payload: models.EventRoomRef{EventID: 3}},
		{event: socket.EventEventJoin, payload: models.EventRoomRef{EventID: 4}},
	}
	if len(frames) != len(want) {
		t.Fatalf("frames = %+v, want %+v", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, frames[i], want[i])
		}
	}

	if n.Joined(3) || !n.Joined(4) {
		t.Error("joined set not switched")
	}
}

func TestNotifierLeaveUnknownIsNoOp(t *testing.T) {
	conn := newFakeConn()
	n := NewNotifier(conn, nil)
	defer n.Close()

	if err := n.Leave(9); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if got := conn.framesFor(socket.EventEventLeave); len(got) != 0 {
		t.Fatalf("leave frames = %d, want 0", len(got))
	}
}

func TestNotifierUserJoinedFilteredBySubscription(t *testing.T) {
	conn := newFakeConn()
	n := NewNotifier(conn, nil)
	defer n.Close()

	var mu sync.Mutex
	var got []models.UserJoinedPush
	off := n.OnUserJoined(func(p models.UserJoinedPush) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	defer off()

	if err := n.Join(3); err != nil {
		t.Fatalf("Join: %v", err)
	}

	conn.push(t, socket.EventUserJoined, models.UserJoinedPush{EventID: 9, Participant: models.Participant{ID: 5}})
	conn.push(t, socket.EventUserJoined, models.UserJoinedPush{EventID: 3, Participant: models.Participant{ID: 6}})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Participant.ID != 6 {
		t.Fatalf("delivered = %+v, want only the subscribed event's push", got)
	}
}

func TestNotifierNewMatchDelivered(t *testing.T) {
	conn := newFakeConn()
	n := NewNotifier(conn, nil)
	defer n.Close()

	var mu sync.Mutex
	var got []models.NewMatchPush
	off := n.OnNewMatch(func(p models.NewMatchPush) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	defer off()

	conn.push(t, socket.EventNewMatch, models.NewMatchPush{MatchID: 12, EventID: 3})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].MatchID != 12 {
		t.Fatalf("delivered = %+v, want the new match", got)
	}
}

func TestNotifierRejoinsOnReconnect(t *testing.T) {
	conn := newFakeConn()
	n := NewNotifier(conn, nil)
	defer n.Close()

	if err := n.Join(3); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn.setStatus(socket.StatusConnected)

	if got := conn.framesFor(socket.EventEventJoin); len(got) != 2 {
		t.Fatalf("join frames = %d, want rejoin after reconnect", len(got))
	}
}
