package chat

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/socket"
)

// Notifier subscribes to event rooms for ambient pushes not tied to one
// conversation: a participant joining the event, a new match forming. It
// retains the joined set so redundant joins are skipped, and switching
// events leaves the previous rooms first.
type Notifier struct {
	conn Conn
	log  *zap.Logger

	mu         sync.Mutex
	joined     map[int]struct{}
	userJoined map[int]func(models.UserJoinedPush)
	newMatch   map[int]func(models.NewMatchPush)
	nextSubID  int
	offs       []func()
	closed     bool
}

func NewNotifier(conn Conn, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Notifier{
		conn:       conn,
		log:        log,
		joined:     make(map[int]struct{}),
		userJoined: make(map[int]func(models.UserJoinedPush)),
		newMatch:   make(map[int]func(models.NewMatchPush)),
	}
	n.offs = []func(){
		conn.On(socket.EventUserJoined, n.handleUserJoined),
		conn.On(socket.EventNewMatch, n.handleNewMatch),
		conn.OnStatus(n.handleStatus),
	}
	return n
}

// Join subscribes to an event room. Already-joined events are skipped; any
// other joined room is left first.
func (n *Notifier) Join(eventID int) error {
	n.mu.Lock()
	if _, ok := n.joined[eventID]; ok {
		n.mu.Unlock()
		return nil
	}
	previous := make([]int, 0, len(n.joined))
	for id := range n.joined {
		previous = append(previous, id)
		delete(n.joined, id)
	}
	n.joined[eventID] = struct{}{}
	n.mu.Unlock()

	for _, id := range previous {
		if err := n.conn.LeaveEvent(id); err != nil {
			n.log.Warn("leave event failed", zap.Int("event_id", id), zap.Error(err))
		}
	}
	return n.conn.JoinEvent(eventID)
}

// Leave unsubscribes from an event room. Leaving an event that was never
// joined is a no-op.
func (n *Notifier) Leave(eventID int) error {
	n.mu.Lock()
	if _, ok := n.joined[eventID]; !ok {
		n.mu.Unlock()
		return nil
	}
	delete(n.joined, eventID)
	n.mu.Unlock()

	return n.conn.LeaveEvent(eventID)
}

// Joined reports whether the event room is currently subscribed.
func (n *Notifier) Joined(eventID int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.joined[eventID]
	return ok
}

// OnUserJoined registers a listener for participants joining subscribed
// events. Used to inject a fresh profile into an in-progress swipe deck.
func (n *Notifier) OnUserJoined(fn func(models.UserJoinedPush)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextSubID
	n.nextSubID++
	n.userJoined[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.userJoined, id)
	}
}

// OnNewMatch registers a listener for new matches in subscribed events.
func (n *Notifier) OnNewMatch(fn func(models.NewMatchPush)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextSubID
	n.nextSubID++
	n.newMatch[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.newMatch, id)
	}
}

// Close leaves every joined room and detaches connection listeners.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	joined := make([]int, 0, len(n.joined))
	for id := range n.joined {
		joined = append(joined, id)
		delete(n.joined, id)
	}
	offs := n.offs
	n.offs = nil
	n.mu.Unlock()

	for _, id := range joined {
		if err := n.conn.LeaveEvent(id); err != nil {
			n.log.Warn("leave event failed", zap.Int("event_id", id), zap.Error(err))
		}
	}
	for _, off := range offs {
		off()
	}
}

func (n *Notifier) handleUserJoined(raw json.RawMessage) {
	var push models.UserJoinedPush
	if err := json.Unmarshal(raw, &push); err != nil {
		n.log.Warn("bad userJoined payload", zap.Error(err))
		return
	}

	n.mu.Lock()
	_, subscribed := n.joined[push.EventID]
	fns := make([]func(models.UserJoinedPush), 0, len(n.userJoined))
	for _, fn := range n.userJoined {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	if !subscribed {
		return
	}
	for _, fn := range fns {
		fn(push)
	}
}

func (n *Notifier) handleNewMatch(raw json.RawMessage) {
	var push models.NewMatchPush
	if err := json.Unmarshal(raw, &push); err != nil {
		n.log.Warn("bad newMatch payload", zap.Error(err))
		return
	}

	n.mu.Lock()
	fns := make([]func(models.NewMatchPush), 0, len(n.newMatch))
	for _, fn := range n.newMatch {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(push)
	}
}

// handleStatus rejoins subscribed event rooms after a reconnect.
func (n *Notifier) handleStatus(s socket.Status) {
	if s != socket.StatusConnected {
		return
	}
	n.mu.Lock()
	joined := make([]int, 0, len(n.joined))
	for id := range n.joined {
		joined = append(joined, id)
	}
	n.mu.Unlock()

	for _, id := range joined {
		if err := n.conn.JoinEvent(id); err != nil {
			n.log.Warn("rejoin event failed", zap.Int("event_id", id), zap.Error(err))
		}
	}
}
