package unread

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/socket"
)

// fakeLoader serves canned snapshots and counts fetches.
type fakeLoader struct {
	mu     sync.Mutex
	groups []models.EventConversations
	calls  int
	loaded chan int
}

func newFakeLoader(groups []models.EventConversations) *fakeLoader {
	return &fakeLoader{groups: groups, loaded: make(chan int, 16)}
}

func (f *fakeLoader) LoadAll(ctx context.Context) ([]models.EventConversations, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	groups := f.groups
	f.mu.Unlock()
	f.loaded <- n
	return groups, nil
}

func (f *fakeLoader) setGroups(groups []models.EventConversations) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = groups
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeConn lets tests fire pushes and control the generation counter.
type fakeConn struct {
	mu       sync.Mutex
	handlers map[string][]func(json.RawMessage)
	statusFn []func(socket.Status)
	gen      uint64
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string][]func(json.RawMessage)), gen: 1}
}

func (f *fakeConn) On(event string, fn func(json.RawMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
	return func() {}
}

func (f *fakeConn) OnStatus(fn func(socket.Status)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFn = append(f.statusFn, fn)
	return func() {}
}

func (f *fakeConn) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

func (f *fakeConn) setGeneration(g uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen = g
}

func (f *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	f.mu.Lock()
	fns := append([]func(json.RawMessage){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (f *fakeConn) setStatus(s socket.Status) {
	f.mu.Lock()
	fns := append([]func(socket.Status){}, f.statusFn...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func group(eventID int, convs ...models.Conversation) models.EventConversations {
	return models.EventConversations{
		Event:         models.Event{ID: eventID, Name: "event"},
		Conversations: convs,
	}
}

func conv(matchID, unreadCount int) models.Conversation {
	return models.Conversation{MatchID: matchID, UnreadCount: unreadCount}
}

func waitLoad(t *testing.T, loader *fakeLoader) {
	t.Helper()
	select {
	case <-loader.loaded:
	case <-time.After(time.Second):
		t.Fatal("no snapshot fetch")
	}
}

func started(t *testing.T, loader *fakeLoader, conn *fakeConn) *Aggregator {
	t.Helper()
	a := New(loader, conn, nil)
	t.Cleanup(a.Close)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitLoad(t, loader)
	return a
}

func update(matchID int) models.ConversationUpdatePush {
	return models.ConversationUpdatePush{
		MatchID:     matchID,
		LastMessage: models.LastMessage{Content: "hi", SentAt: time.Now()},
	}
}

func TestSnapshotRebuild(t *testing.T) {
	loader := newFakeLoader([]models.EventConversations{
		group(3, conv(7, 0), conv(8, 2)),
		group(4, conv(9, 1)),
	})
	a := started(t, loader, newFakeConn())

	if !a.HasUnreadGeneral() {
		t.Error("HasUnreadGeneral = false, want true")
	}
	if !a.HasUnreadForEvent(3) || !a.HasUnreadForEvent(4) {
		t.Error("expected unread in events 3 and 4")
	}
	if a.HasUnreadForEvent(5) {
		t.Error("unexpected unread for unknown event")
	}
}

func TestIncomingUpdateFlagsUnread(t *testing.T) {
	// Scenario A: conversation 7 in event 3, no unread, no active
	// conversation; a push arrives.
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 0))})
	conn := newFakeConn()
	a := started(t, loader, conn)

	if a.HasUnreadGeneral() {
		t.Fatal("unexpectedly unread before push")
	}
	conn.push(t, socket.EventConversationUpdate, update(7))

	if !a.HasUnreadForEvent(3) {
		t.Error("HasUnreadForEvent(3) = false, want true")
	}
	if !a.HasUnreadGeneral() {
		t.Error("HasUnreadGeneral = false, want true")
	}
}

func TestActiveConversationSuppression(t *testing.T) {
	// Scenario B: same as A, but conversation 7 is on screen.
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 0))})
	conn := newFakeConn()
	a := started(t, loader, conn)

	a.SetActiveConversation(7)
	conn.push(t, socket.EventConversationUpdate, update(7))

	if a.HasUnreadForEvent(3) {
		t.Error("HasUnreadForEvent(3) = true, want suppressed")
	}
	if a.HasUnreadGeneral() {
		t.Error("HasUnreadGeneral = true, want suppressed")
	}

	// Clearing the active conversation restores normal flagging.
	a.SetActiveConversation(0)
	conn.push(t, socket.EventConversationUpdate, update(7))
	if !a.HasUnreadForEvent(3) {
		t.Error("push after clearing active was not flagged")
	}
}

func TestUnknownConversationTriggersResync(t *testing.T) {
	// Scenario C: push for a conversation absent from the id→event map.
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 0))})
	conn := newFakeConn()
	a := started(t, loader, conn)

	before := loader.callCount()
	loader.setGroups([]models.EventConversations{group(3, conv(7, 0)), group(5, conv(99, 1))})
	conn.push(t, socket.EventConversationUpdate, update(99))

	waitLoad(t, loader)
	if got := loader.callCount(); got != before+1 {
		t.Fatalf("snapshot fetches = %d, want %d", got, before+1)
	}
	deadline := time.Now().Add(time.Second)
	for !a.HasUnreadForEvent(5) {
		if time.Now().After(deadline) {
			t.Fatal("resync did not pick up the new conversation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 1), conv(8, 1))})
	a := started(t, loader, newFakeConn())

	a.MarkConversationAsRead(7)
	if !a.HasUnreadForEvent(3) {
		t.Fatal("event 3 should still have conversation 8 unread")
	}

	// Second call is a no-op, not an error.
	a.MarkConversationAsRead(7)
	if !a.HasUnreadForEvent(3) || !a.HasUnreadGeneral() {
		t.Error("repeated mark-read changed unrelated state")
	}
}

func TestBucketCleanup(t *testing.T) {
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 1))})
	a := started(t, loader, newFakeConn())

	a.MarkConversationAsRead(7)

	if a.HasUnreadForEvent(3) {
		t.Error("HasUnreadForEvent(3) = true after last unread marked read")
	}
	if a.HasUnreadGeneral() {
		t.Error("HasUnreadGeneral = true after last unread marked read")
	}
}

func TestNewMatchTriggersResync(t *testing.T) {
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 0))})
	conn := newFakeConn()
	started(t, loader, conn)

	before := loader.callCount()
	conn.push(t, socket.EventNewMatch, models.NewMatchPush{MatchID: 50, EventID: 3})

	waitLoad(t, loader)
	if got := loader.callCount(); got != before+1 {
		t.Fatalf("snapshot fetches = %d, want %d", got, before+1)
	}
}

func TestReconnectTriggersResync(t *testing.T) {
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 0))})
	conn := newFakeConn()
	started(t, loader, conn)

	before := loader.callCount()
	conn.setGeneration(2)
	conn.setStatus(socket.StatusConnected)

	waitLoad(t, loader)
	if got := loader.callCount(); got != before+1 {
		t.Fatalf("snapshot fetches = %d, want %d", got, before+1)
	}
}

func TestStalePatchDropped(t *testing.T) {
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 0))})
	conn := newFakeConn()
	conn.setGeneration(2)
	a := started(t, loader, conn)

	// A patch that was read under an older connection generation arrives
	// after the reload; the reload already accounts for it.
	conn.setGeneration(1)
	conn.push(t, socket.EventConversationUpdate, update(7))

	if a.HasUnreadGeneral() {
		t.Error("stale patch was applied over a newer reload")
	}
}

func TestCloseDetachesListeners(t *testing.T) {
	loader := newFakeLoader([]models.EventConversations{group(3, conv(7, 0))})
	conn := newFakeConn()
	a := started(t, loader, conn)

	a.Close()
	conn.push(t, socket.EventConversationUpdate, update(7))

	if a.HasUnreadGeneral() {
		t.Error("push applied after Close")
	}
}
