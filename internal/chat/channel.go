package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/socket"
	"github.com/eventmatch/chat-client/internal/validation"
)

// Conn is what this package needs from the session connection.
type Conn interface {
	Emit(event string, payload any) error
	On(event string, fn func(json.RawMessage)) func()
	OnStatus(fn func(socket.Status)) func()
	JoinConversation(matchID int) error
	LeaveConversation(matchID int) error
	JoinEvent(eventID int) error
	LeaveEvent(eventID int) error
}

// Sender is the REST surface the channel writes through.
type Sender interface {
	SendMessage(ctx context.Context, matchID int, content string) (*models.Message, error)
	MarkConversationRead(ctx context.Context, matchID int) error
}

var (
	ErrNotJoined      = errors.New("chat: no conversation joined")
	ErrInvalidContent = errors.New("chat: invalid message content")
)

// UpdateKind classifies thread updates fanned out to subscribers.
type UpdateKind int

const (
	UpdateMessage UpdateKind = iota + 1
	UpdateTyping
	UpdateRead
)

// Update is delivered to channel subscribers.
type Update struct {
	Kind    UpdateKind
	Message *models.Message // set for UpdateMessage
	Typing  []int           // counterpart ids currently typing, for UpdateTyping
}

const defaultTypingIdle = 3 * time.Second

// Channel is the live view of one conversation: at most one conversation is
// joined at a time, the ordered message list converges from the send path
// and the push path through a single dedup routine, and typing indication is
// debounced so only transitions hit the wire.
type Channel struct {
	conn   Conn
	sender Sender
	userID int
	log    *zap.Logger

	// typingIdle is how long after the last keystroke the outbound typing
	// indicator auto-clears.
	typingIdle time.Duration

	mu          sync.Mutex
	joined      int
	messages    []models.Message
	seen        map[int]struct{}
	typing      map[int]struct{}
	typingOut   bool
	typingTimer *time.Timer
	subs        map[int]func(Update)
	nextSubID   int
	offs        []func()
	closed      bool
}

// NewChannel wires a channel to the connection and REST client. The local
// user id drives self-echo suppression.
func NewChannel(conn Conn, sender Sender, userID int, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	ch := &Channel{
		conn:       conn,
		sender:     sender,
		userID:     userID,
		log:        log,
		typingIdle: defaultTypingIdle,
		seen:       make(map[int]struct{}),
		typing:     make(map[int]struct{}),
		subs:       make(map[int]func(Update)),
	}
	ch.offs = []func(){
		conn.On(socket.EventNewMessage, ch.handleNewMessage),
		conn.On(socket.EventTyping, ch.handleTyping),
		conn.On(socket.EventMessageRead, ch.handleMessageRead),
		conn.OnStatus(ch.handleStatus),
	}
	return ch
}

// Join subscribes to a conversation's room. A previously joined conversation
// is left first; joining the current conversation again is a no-op.
func (ch *Channel) Join(matchID int) error {
	ch.mu.Lock()
	prev := ch.joined
	if prev == matchID {
		ch.mu.Unlock()
		return nil
	}
	ch.joined = matchID
	ch.resetThreadLocked()
	ch.mu.Unlock()

	if prev != 0 {
		if err := ch.conn.LeaveConversation(prev); err != nil {
			ch.log.Warn("leave conversation failed", zap.Int("match_id", prev), zap.Error(err))
		}
	}
	return ch.conn.JoinConversation(matchID)
}

// Leave unsubscribes from the joined conversation, if any.
func (ch *Channel) Leave() {
	ch.mu.Lock()
	prev := ch.joined
	ch.joined = 0
	ch.resetThreadLocked()
	ch.mu.Unlock()

	if prev != 0 {
		if err := ch.conn.LeaveConversation(prev); err != nil {
			ch.log.Warn("leave conversation failed", zap.Int("match_id", prev), zap.Error(err))
		}
	}
}

// Joined returns the currently joined conversation id, 0 if none.
func (ch *Channel) Joined() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.joined
}

// SeedHistory merges a snapshot message page for the given conversation into
// the local list. Dedup applies, so seeding after pushes have already arrived
// is safe; a page for a conversation no longer joined is discarded.
func (ch *Channel) SeedHistory(matchID int, messages []models.Message) {
	for _, m := range messages {
		ch.appendIfNew(matchID, m)
	}
}

// Messages returns a copy of the ordered local list.
func (ch *Channel) Messages() []models.Message {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]models.Message, len(ch.messages))
	copy(out, ch.messages)
	return out
}

// TypingParticipants returns the counterpart ids currently typing.
func (ch *Channel) TypingParticipants() []int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.typingSnapshotLocked()
}

// Send performs the request/response send and applies the returned message
// locally. The message is only appended after a successful response, so a
// failed send needs no rollback. The push echo for this message is discarded
// by self-echo suppression.
func (ch *Channel) Send(ctx context.Context, content string) (*models.Message, error) {
	if !validation.ValidateMessageContent(content) {
		return nil, ErrInvalidContent
	}

	ch.mu.Lock()
	matchID := ch.joined
	ch.mu.Unlock()
	if matchID == 0 {
		return nil, ErrNotJoined
	}

	msg, err := ch.sender.SendMessage(ctx, matchID, content)
	if err != nil {
		return nil, err
	}
	ch.appendIfNew(matchID, *msg)
	ch.SetTyping(false)
	return msg, nil
}

// Subscribe registers a thread-update listener. The returned function is the
// only way to stop receiving.
func (ch *Channel) Subscribe(fn func(Update)) func() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	id := ch.nextSubID
	ch.nextSubID++
	ch.subs[id] = fn

	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.subs, id)
	}
}

// SetTyping drives the outbound typing indicator. Only transitions are
// transmitted: repeated true calls while already typing just re-arm the
// auto-clear timer, and the indicator clears on its own after typingIdle of
// silence.
func (ch *Channel) SetTyping(active bool) {
	ch.mu.Lock()
	matchID := ch.joined
	if matchID == 0 {
		ch.mu.Unlock()
		return
	}

	if active {
		if ch.typingTimer != nil {
			ch.typingTimer.Stop()
		}
		ch.typingTimer = time.AfterFunc(ch.typingIdle, func() { ch.SetTyping(false) })
		if ch.typingOut {
			ch.mu.Unlock()
			return
		}
		ch.typingOut = true
		ch.mu.Unlock()
		ch.emitTyping(matchID, true)
		return
	}

	if !ch.typingOut {
		ch.mu.Unlock()
		return
	}
	ch.typingOut = false
	if ch.typingTimer != nil {
		ch.typingTimer.Stop()
		ch.typingTimer = nil
	}
	ch.mu.Unlock()
	ch.emitTyping(matchID, false)
}

// Close detaches every connection listener and leaves the joined room.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	if ch.typingTimer != nil {
		ch.typingTimer.Stop()
		ch.typingTimer = nil
	}
	offs := ch.offs
	ch.offs = nil
	ch.mu.Unlock()

	ch.Leave()
	for _, off := range offs {
		off()
	}
}

// appendIfNew is the single merge routine shared by the send-result path and
// the push path. It enforces the invariants of the local list: a message id
// never appears twice, and only messages for the joined conversation land in
// it. The conversation check happens under the same lock as the append, so a
// result arriving after a thread switch is discarded rather than merged into
// the new thread. Message ids are unique per conversation only, so a stale
// entry would also poison the dedup set.
func (ch *Channel) appendIfNew(matchID int, msg models.Message) bool {
	ch.mu.Lock()
	if matchID != ch.joined {
		ch.mu.Unlock()
		return false
	}
	if _, dup := ch.seen[msg.ID]; dup {
		ch.mu.Unlock()
		return false
	}
	ch.seen[msg.ID] = struct{}{}
	ch.messages = append(ch.messages, msg)
	subs := ch.subsSnapshotLocked()
	ch.mu.Unlock()

	notify(subs, Update{Kind: UpdateMessage, Message: &msg})
	return true
}

func (ch *Channel) handleNewMessage(raw json.RawMessage) {
	var push models.NewMessagePush
	if err := json.Unmarshal(raw, &push); err != nil {
		ch.log.Warn("bad newMessage payload", zap.Error(err))
		return
	}

	// Guaranteed-redundant echo of an optimistic send.
	if push.Message.SenderID == ch.userID {
		return
	}
	// appendIfNew drops pushes for other conversations.
	if !ch.appendIfNew(push.MatchID, push.Message) {
		return
	}

	// The thread is open on screen, so let the sender observe a read
	// receipt. Fire-and-forget: a failure must not block rendering.
	go func() {
		if err := ch.sender.MarkConversationRead(context.Background(), push.MatchID); err != nil {
			ch.log.Warn("mark read failed", zap.Int("match_id", push.MatchID), zap.Error(err))
		}
	}()
}

func (ch *Channel) handleTyping(raw json.RawMessage) {
	var push models.TypingPush
	if err := json.Unmarshal(raw, &push); err != nil {
		ch.log.Warn("bad typing payload", zap.Error(err))
		return
	}
	if push.UserID == ch.userID {
		return
	}

	ch.mu.Lock()
	if push.MatchID != ch.joined {
		ch.mu.Unlock()
		return
	}
	if push.IsTyping {
		ch.typing[push.UserID] = struct{}{}
	} else {
		delete(ch.typing, push.UserID)
	}
	typing := ch.typingSnapshotLocked()
	subs := ch.subsSnapshotLocked()
	ch.mu.Unlock()

	notify(subs, Update{Kind: UpdateTyping, Typing: typing})
}

func (ch *Channel) handleMessageRead(raw json.RawMessage) {
	var push models.MessageReadPush
	if err := json.Unmarshal(raw, &push); err != nil {
		ch.log.Warn("bad messageRead payload", zap.Error(err))
		return
	}

	ch.mu.Lock()
	if push.MatchID != ch.joined {
		ch.mu.Unlock()
		return
	}
	readAt := push.ReadAt
	if readAt.IsZero() {
		readAt = time.Now()
	}
	changed := false
	for i := range ch.messages {
		if ch.messages[i].SenderID == ch.userID && ch.messages[i].ReadAt == nil {
			at := readAt
			ch.messages[i].ReadAt = &at
			changed = true
		}
	}
	subs := ch.subsSnapshotLocked()
	ch.mu.Unlock()

	if changed {
		notify(subs, Update{Kind: UpdateRead})
	}
}

// handleStatus rejoins the conversation room after a reconnect. The message
// list itself is resynchronized by the screen reloading its snapshot.
func (ch *Channel) handleStatus(s socket.Status) {
	if s != socket.StatusConnected {
		return
	}
	ch.mu.Lock()
	joined := ch.joined
	ch.mu.Unlock()
	if joined == 0 {
		return
	}
	if err := ch.conn.JoinConversation(joined); err != nil {
		ch.log.Warn("rejoin conversation failed", zap.Int("match_id", joined), zap.Error(err))
	}
}

func (ch *Channel) emitTyping(matchID int, active bool) {
	err := ch.conn.Emit(socket.EventTyping, models.TypingPush{
		MatchID:  matchID,
		UserID:   ch.userID,
		IsTyping: active,
	})
	if err != nil {
		ch.log.Warn("typing emit failed", zap.Error(err))
	}
}

// resetThreadLocked clears per-conversation state. Caller holds ch.mu.
func (ch *Channel) resetThreadLocked() {
	ch.messages = nil
	ch.seen = make(map[int]struct{})
	ch.typing = make(map[int]struct{})
	ch.typingOut = false
	if ch.typingTimer != nil {
		ch.typingTimer.Stop()
		ch.typingTimer = nil
	}
}

func (ch *Channel) typingSnapshotLocked() []int {
	out := make([]int, 0, len(ch.typing))
	for id := range ch.typing {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (ch *Channel) subsSnapshotLocked() []func(Update) {
	out := make([]func(Update), 0, len(ch.subs))
	for _, fn := range ch.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Update), u Update) {
	for _, fn := range subs {
		fn(u)
	}
}
