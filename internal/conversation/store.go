// Package conversation holds the client-side chat state: pending input, the
// visible message list and the in-flight send.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/chatrelay/internal/chatclient"
	"github.com/xiaot623/chatrelay/internal/protocol"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation. Messages are never edited.
type Message struct {
	ID      string
	Role    Role
	Content string
}

// State is a copy of the store's visible state.
type State struct {
	Input        string
	Messages     []Message
	IsLoading    bool
	LastError    string
	LastResponse json.RawMessage
}

// Relay sends one chat request and returns the raw reply body.
type Relay interface {
	Chat(ctx context.Context, req *protocol.ChatRequest) (json.RawMessage, error)
}

var _ Relay = (*chatclient.Client)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRoute sets the route sent with every request.
func WithRoute(route string) Option {
	return func(s *Store) {
		s.route = route
	}
}

// Store is safe for concurrent use. Listeners are called without the lock held.
type Store struct {
	relay  Relay
	chatID string
	route  string

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextSub   int
}

// New creates a store bound to one session identifier.
func New(relay Relay, chatID string, opts ...Option) *Store {
	s := &Store{
		relay:     relay,
		chatID:    chatID,
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChatID returns the session identifier sent with every request.
func (s *Store) ChatID() string {
	return s.chatID
}

// SetInput replaces the pending input.
func (s *Store) SetInput(text string) {
	s.mu.Lock()
	s.state.Input = text
	s.mu.Unlock()
	s.notify()
}

// Clear drops all messages, the last response and the last error.
// A send in flight still appends its reply when it completes.
func (s *Store) Clear() {
	s.mu.Lock()
	s.state.Messages = nil
	s.state.LastResponse = nil
	s.state.LastError = ""
	s.mu.Unlock()
	s.notify()
}

// Send submits the pending input. It returns false without doing anything when
// the input is blank or another send is in flight. Otherwise it blocks until
// the reply (or the failure) has been appended.
func (s *Store) Send(ctx context.Context) bool {
	s.mu.Lock()
	text := strings.TrimSpace(s.state.Input)
	if text == "" || s.state.IsLoading {
		s.mu.Unlock()
		return false
	}
	s.state.Messages = append(s.state.Messages, newMessage(RoleUser, text))
	s.state.Input = ""
	s.state.IsLoading = true
	s.state.LastError = ""
	s.mu.Unlock()
	s.notify()

	body, err := s.relay.Chat(ctx, protocol.NewChatRequest(s.chatID, s.route, text))

	s.mu.Lock()
	if err != nil {
		msg := chatclient.ErrorMessage(err)
		log.Debug().Err(err).Str("chat_id", s.chatID).Msg("chat request failed")
		s.state.Messages = append(s.state.Messages, newMessage(RoleAssistant, "Error: "+msg))
		s.state.LastError = msg
	} else {
		s.state.Messages = append(s.state.Messages, newMessage(RoleAssistant, chatclient.ExtractText(body)))
		s.state.LastResponse = body
	}
	s.state.IsLoading = false
	s.mu.Unlock()
	s.notify()

	return true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after every state change and returns a
// function that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshotLocked() State {
	st := s.state
	st.Messages = append([]Message(nil), s.state.Messages...)
	return st
}

func (s *Store) notify() {
	s.mu.Lock()
	st := s.snapshotLocked()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func newMessage(role Role, content string) Message {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return Message{
		ID:      fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix),
		Role:    role,
		Content: content,
	}
}
