package unread

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/socket"
)

// Loader is the snapshot surface the aggregator rebuilds from.
type Loader interface {
	LoadAll(ctx context.Context) ([]models.EventConversations, error)
}

// Conn is what the aggregator needs from the session connection.
type Conn interface {
	On(event string, fn func(json.RawMessage)) func()
	OnStatus(fn func(socket.Status)) func()
	Generation() uint64
}

// Aggregator keeps the session-wide unread view current without requiring
// any screen to be mounted: a set of conversations with unread messages and,
// per event, the subset belonging to it. It is built once per session and
// torn down with Close.
//
// Invariant: a conversation id is in an event bucket iff it is in the unread
// set, and no empty bucket is retained.
type Aggregator struct {
	loader Loader
	conn   Conn
	log    *zap.Logger

	mu        sync.Mutex
	attached  bool
	offs      []func()
	unread    map[int]struct{}
	byEvent   map[int]map[int]struct{}
	convEvent map[int]int
	active    int
	loadedGen uint64
	closed    bool
}

// New builds an aggregator. Listeners attach on Start, not here, so tests
// and callers control when the subscription begins.
func New(loader Loader, conn Conn, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		loader:    loader,
		conn:      conn,
		log:       log,
		unread:    make(map[int]struct{}),
		byEvent:   make(map[int]map[int]struct{}),
		convEvent: make(map[int]int),
	}
}

// Start attaches push listeners (once per session, guarded) and performs the
// first full reload.
func (a *Aggregator) Start(ctx context.Context) error {
	a.attach()
	return a.Refresh(ctx)
}

// attach registers connection listeners exactly once.
func (a *Aggregator) attach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attached || a.closed {
		return
	}
	a.attached = true
	a.offs = []func(){
		a.conn.On(socket.EventConversationUpdate, a.handleConversationUpdate),
		a.conn.On(socket.EventNewMatch, a.handleNewMatch),
		a.conn.OnStatus(a.handleStatus),
	}
}

// Refresh reloads the full snapshot and rebuilds the index wholesale. The
// rebuilt index always overwrites whatever patches arrived in the meantime;
// the snapshot is the authoritative baseline.
func (a *Aggregator) Refresh(ctx context.Context) error {
	gen := a.conn.Generation()
	groups, err := a.loader.LoadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "load conversations")
	}

	unread := make(map[int]struct{})
	byEvent := make(map[int]map[int]struct{})
	convEvent := make(map[int]int)
	for _, g := range groups {
		for _, c := range g.Conversations {
			convEvent[c.MatchID] = g.Event.ID
			if c.UnreadCount > 0 {
				unread[c.MatchID] = struct{}{}
				addToBucket(byEvent, g.Event.ID, c.MatchID)
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.unread = unread
	a.byEvent = byEvent
	a.convEvent = convEvent
	if gen > a.loadedGen {
		a.loadedGen = gen
	}
	return nil
}

// HasUnreadGeneral reports whether any conversation has unread messages.
func (a *Aggregator) HasUnreadGeneral() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.unread) > 0
}

// HasUnreadForEvent reports whether any conversation of the event has unread
// messages.
func (a *Aggregator) HasUnreadForEvent(eventID int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	bucket, ok := a.byEvent[eventID]
	return ok && len(bucket) > 0
}

// MarkConversationAsRead clears a conversation from the unread view. It is
// idempotent; marking an already-read conversation is a no-op.
func (a *Aggregator) MarkConversationAsRead(matchID int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.unread, matchID)
	for eventID, bucket := range a.byEvent {
		delete(bucket, matchID)
		if len(bucket) == 0 {
			delete(a.byEvent, eventID)
		}
	}
}

// SetActiveConversation records which conversation is on screen, 0 for none.
// Pushes for the active conversation are not flagged unread. Clearing unread
// state is the screen's responsibility via MarkConversationAsRead.
func (a *Aggregator) SetActiveConversation(matchID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = matchID
}

// ActiveConversation returns the conversation currently on screen, 0 if none.
func (a *Aggregator) ActiveConversation() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Close detaches listeners and freezes the index.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.attached = false
	offs := a.offs
	a.offs = nil
	a.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// handleConversationUpdate patches the index for one new last message.
func (a *Aggregator) handleConversationUpdate(raw json.RawMessage) {
	var push models.ConversationUpdatePush
	if err := json.Unmarshal(raw, &push); err != nil {
		a.log.Warn("bad conversationUpdate payload", zap.Error(err))
		return
	}
	gen := a.conn.Generation()

	a.mu.Lock()
	if a.closed || gen < a.loadedGen {
		// Patch from before the last full rebuild; the rebuild already wins.
		a.mu.Unlock()
		return
	}
	if push.MatchID == a.active && a.active != 0 {
		// User is already looking at it. The screen reflects the preview.
		a.mu.Unlock()
		return
	}
	eventID, known := a.convEvent[push.MatchID]
	if !known {
		a.mu.Unlock()
		// Conversation created after the last reload; the owning event is
		// unknown, so resynchronize instead of patching partially.
		a.asyncRefresh("unknown conversation")
		return
	}
	a.unread[push.MatchID] = struct{}{}
	addToBucket(a.byEvent, eventID, push.MatchID)
	a.mu.Unlock()
}

// handleNewMatch resynchronizes: a new conversation exists that no prior
// snapshot knew about.
func (a *Aggregator) handleNewMatch(json.RawMessage) {
	a.asyncRefresh("new match")
}

// handleStatus resynchronizes after every reconnect; the socket may have
// missed deliveries while it was down.
func (a *Aggregator) handleStatus(s socket.Status) {
	if s != socket.StatusConnected {
		return
	}
	a.asyncRefresh("reconnected")
}

func (a *Aggregator) asyncRefresh(reason string) {
	go func() {
		if err := a.Refresh(context.Background()); err != nil {
			a.log.Warn("unread resync failed", zap.String("reason", reason), zap.Error(err))
		}
	}()
}

func addToBucket(byEvent map[int]map[int]struct{}, eventID, matchID int) {
	bucket, ok := byEvent[eventID]
	if !ok {
		bucket = make(map[int]struct{})
		byEvent[eventID] = bucket
	}
	bucket[matchID] = struct{}{}
}
