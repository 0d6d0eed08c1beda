package chat

import (
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"engineerhub/internal/api"
	"engineerhub/internal/logging"
)

// ErrEmptyMessage is returned when sending blank text.
var ErrEmptyMessage = errors.New("chat: empty message")

// Sender writes frames; *Channel implements it.
type Sender interface {
	Send(typ MessageType, payload any) error
}

// RoomState is a snapshot of a Room.
type RoomState struct {
	Messages []api.ChatMessage
	Typing   []string // other users currently typing, sorted
	Online   []string // users seen joining and not yet leaving, sorted
}

// Room is the client view of one conversation: the ordered message list,
// who is typing, and read receipts. Feed it every Channel message via
// Handle; messages of other conversations are ignored.
type Room struct {
	conversation int
	self         string
	out          Sender
	newID        func() string

	mu         sync.Mutex
	messages   []api.ChatMessage
	typing     map[string]struct{}
	online     map[string]struct{}
	selfTyping bool
	subs       map[int]func(RoomState)
	nextSub    int
}

// NewRoom creates an empty room for conversation as user self.
func NewRoom(conversation int, self string, out Sender) *Room {
	return &Room{
		conversation: conversation,
		self:         self,
		out:          out,
		newID:        uuid.NewString,
		typing:       make(map[string]struct{}),
		online:       make(map[string]struct{}),
		subs:         make(map[int]func(RoomState)),
	}
}

// Conversation returns the conversation ID.
func (r *Room) Conversation() int { return r.conversation }

// Self returns the local username.
func (r *Room) Self() string { return r.self }

// State returns a snapshot.
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Room) snapshot() RoomState {
	return RoomState{
		Messages: slices.Clone(r.messages),
		Typing:   slices.Sorted(maps.Keys(r.typing)),
		Online:   slices.Sorted(maps.Keys(r.online)),
	}
}

// Subscribe registers fn for every change and returns its remover.
func (r *Room) Subscribe(fn func(RoomState)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// commit publishes the current state. Caller holds mu; it is released.
func (r *Room) commit() {
	st := r.snapshot()
	fns := make([]func(RoomState), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Handle applies one inbound message.
func (r *Room) Handle(m Message) {
	if id, ok := conversationOf(m); ok && id != r.conversation {
		return
	}

	switch m.Type {
	case TypeChatMessage:
		r.receive(m)
	case TypeTypingStart, TypeTypingStop:
		user := m.Field("username")
		if user == "" || user == r.self {
			return
		}
		r.mu.Lock()
		if m.Type == TypeTypingStart {
			r.typing[user] = struct{}{}
		} else {
			delete(r.typing, user)
		}
		r.commit()
	case TypeMessageRead:
		r.markRead(m)
	case TypeUserJoined, TypeUserLeft:
		user := m.Field("username")
		if user == "" {
			return
		}
		r.mu.Lock()
		if m.Type == TypeUserJoined {
			r.online[user] = struct{}{}
		} else {
			delete(r.online, user)
			delete(r.typing, user)
		}
		r.commit()
	default:
		logging.ChatDebug("room %d: ignoring %s", r.conversation, m.Type)
	}
}

func (r *Room) receive(m Message) {
	var msg api.ChatMessage
	if err := m.Decode(&msg); err != nil {
		logging.ChatWarn("room %d: %v", r.conversation, err)
		return
	}
	if msg.Conversation != 0 && msg.Conversation != r.conversation {
		return
	}
	if msg.Conversation == 0 {
		msg.Conversation = r.conversation
	}

	r.mu.Lock()
	delete(r.typing, msg.Sender)
	switch i := r.indexOf(msg); {
	case i < 0:
		r.messages = append(r.messages, msg)
	case msg.ClientID != "" && r.messages[i].ID == 0:
		// Server echo of our optimistic copy.
		r.messages[i] = msg
	default:
		logging.ChatDebug("room %d: duplicate message %d", r.conversation, msg.ID)
	}
	r.commit()
}

// indexOf finds msg by client ID, then by server ID. Caller holds mu.
func (r *Room) indexOf(msg api.ChatMessage) int {
	for i, have := range r.messages {
		if msg.ClientID != "" && have.ClientID == msg.ClientID {
			return i
		}
		if msg.ID != 0 && have.ID == msg.ID {
			return i
		}
	}
	return -1
}

func (r *Room) markRead(m Message) {
	if reader := m.Field("username"); reader == r.self {
		return
	}
	ids := make(map[int]bool)
	if raw, ok := m.Data["message_ids"].([]any); ok {
		for _, v := range raw {
			if id, ok := toInt(v); ok {
				ids[id] = true
			}
		}
	}

	r.mu.Lock()
	for i := range r.messages {
		msg := &r.messages[i]
		if msg.Sender != r.self {
			continue
		}
		if len(ids) == 0 || ids[msg.ID] {
			msg.IsRead = true
		}
	}
	r.commit()
}

// Send posts text to the conversation. The message is appended locally
// before the frame goes out so an echo racing the send matches it by client
// ID. It is removed again if the channel rejects the frame, and replaced by
// the server's copy when the echo arrives.
func (r *Room) Send(text string) (api.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return api.ChatMessage{}, ErrEmptyMessage
	}

	msg := api.ChatMessage{
		ClientID:     r.newID(),
		Conversation: r.conversation,
		Sender:       r.self,
		Content:      text,
		CreatedAt:    time.Now().UTC(),
	}
	payload := map[string]any{
		"conversation": r.conversation,
		"content":      text,
		"client_id":    msg.ClientID,
	}

	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.commit()

	if err := r.out.Send(TypeChatMessage, payload); err != nil {
		r.mu.Lock()
		if i := r.indexOf(msg); i >= 0 && r.messages[i].ID == 0 {
			r.messages = slices.Delete(r.messages, i, i+1)
		}
		r.commit()
		return api.ChatMessage{}, err
	}

	r.mu.Lock()
	wasTyping := r.selfTyping
	r.selfTyping = false
	r.mu.Unlock()

	if wasTyping {
		_ = r.out.Send(TypeTypingStop, r.presencePayload())
	}
	return msg, nil
}

// SetTyping announces whether the local user is typing. Repeated calls with
// the same value send nothing.
func (r *Room) SetTyping(on bool) error {
	r.mu.Lock()
	if r.selfTyping == on {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	typ := TypeTypingStop
	if on {
		typ = TypeTypingStart
	}
	if err := r.out.Send(typ, r.presencePayload()); err != nil {
		return err
	}

	r.mu.Lock()
	r.selfTyping = on
	r.mu.Unlock()
	return nil
}

// MarkRead sends a read receipt for every unread message from other users
// and marks them read locally.
func (r *Room) MarkRead() error {
	r.mu.Lock()
	var ids []int
	for _, msg := range r.messages {
		if msg.Sender != r.self && !msg.IsRead && msg.ID != 0 {
			ids = append(ids, msg.ID)
		}
	}
	r.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	payload := r.presencePayload()
	payload["message_ids"] = ids
	if err := r.out.Send(TypeMessageRead, payload); err != nil {
		return err
	}

	read := make(map[int]bool, len(ids))
	for _, id := range ids {
		read[id] = true
	}
	r.mu.Lock()
	for i := range r.messages {
		if read[r.messages[i].ID] {
			r.messages[i].IsRead = true
		}
	}
	r.commit()
	return nil
}

// Prepend merges older history into the room, skipping messages already
// present, and keeps the list in chronological order.
func (r *Room) Prepend(history []api.ChatMessage) {
	r.mu.Lock()
	older := make([]api.ChatMessage, 0, len(history))
	for _, msg := range history {
		if r.indexOf(msg) < 0 {
			older = append(older, msg)
		}
	}
	r.messages = append(older, r.messages...)
	slices.SortStableFunc(r.messages, func(a, b api.ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	r.commit()
}

func (r *Room) presencePayload() map[string]any {
	return map[string]any{
		"conversation": r.conversation,
		"username":     r.self,
	}
}

func conversationOf(m Message) (int, bool) {
	for _, key := range []string{"conversation", "conversation_id"} {
		if v, ok := m.Data[key]; ok {
			return toInt(v)
		}
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
