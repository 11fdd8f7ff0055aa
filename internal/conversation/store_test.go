package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/chatrelay/internal/chatclient"
	"github.com/xiaot623/chatrelay/internal/protocol"
)

type fakeRelay struct {
	mu       sync.Mutex
	requests []*protocol.ChatRequest
	body     json.RawMessage
	err      error
	// release, when set, blocks Chat until it is closed.
	release chan struct{}
	started chan struct{}
}

func (f *fakeRelay) Chat(ctx context.Context, req *protocol.ChatRequest) (json.RawMessage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.body, f.err
}

func (f *fakeRelay) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestSendSuccess(t *testing.T) {
	relay := &fakeRelay{body: json.RawMessage(`{"success":true,"webhookResponse":{"output":"hi there"}}`)}
	s := New(relay, "chat-1", WithRoute("general"))

	s.SetInput("  hello  ")
	require.True(t, s.Send(context.Background()))

	st := s.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, RoleUser, st.Messages[0].Role)
	assert.Equal(t, "hello", st.Messages[0].Content)
	assert.Equal(t, RoleAssistant, st.Messages[1].Role)
	assert.Equal(t, "hi there", st.Messages[1].Content)
	assert.NotEqual(t, st.Messages[0].ID, st.Messages[1].ID)
	assert.Empty(t, st.Input)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.LastError)
	assert.JSONEq(t, string(relay.body), string(st.LastResponse))

	require.Equal(t, 1, relay.calls())
	text, ok := relay.requests[0].Text()
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
	assert.JSONEq(t, `"chat-1"`, string(relay.requests[0].ChatID))
	assert.JSONEq(t, `"general"`, string(relay.requests[0].Route))
}

func TestSendBlankInputIsNoop(t *testing.T) {
	relay := &fakeRelay{}
	s := New(relay, "chat-1")

	s.SetInput("   ")
	assert.False(t, s.Send(context.Background()))
	assert.Empty(t, s.Snapshot().Messages)
	assert.Equal(t, 0, relay.calls())
}

func TestSendFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "envelope error",
			err:     &chatclient.StatusError{StatusCode: 502, Message: "Request failed with status code 502"},
			wantMsg: "Request failed with status code 502",
		},
		{
			name:    "transport error",
			err:     errors.New("connection refused"),
			wantMsg: "connection refused",
		},
		{
			name:    "empty error",
			err:     errors.New(""),
			wantMsg: chatclient.DefaultErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeRelay{err: tt.err}, "chat-1")
			s.SetInput("hello")
			require.True(t, s.Send(context.Background()))

			st := s.Snapshot()
			require.Len(t, st.Messages, 2)
			assert.Equal(t, "Error: "+tt.wantMsg, st.Messages[1].Content)
			assert.Equal(t, tt.wantMsg, st.LastError)
			assert.False(t, st.IsLoading)
		})
	}
}

func TestMessageCountStaysEven(t *testing.T) {
	relay := &fakeRelay{body: json.RawMessage(`"ok"`)}
	s := New(relay, "chat-1")

	for i, text := range []string{"one", "two", "three"} {
		s.SetInput(text)
		require.True(t, s.Send(context.Background()))
		assert.Len(t, s.Snapshot().Messages, 2*(i+1))
	}

	relay.err = errors.New("down")
	s.SetInput("four")
	require.True(t, s.Send(context.Background()))
	assert.Len(t, s.Snapshot().Messages, 8)
}

func TestClear(t *testing.T) {
	relay := &fakeRelay{err: errors.New("down")}
	s := New(relay, "chat-1")
	s.SetInput("hello")
	s.Send(context.Background())
	require.NotEmpty(t, s.Snapshot().LastError)

	s.Clear()

	st := s.Snapshot()
	assert.Empty(t, st.Messages)
	assert.Empty(t, st.LastError)
	assert.Nil(t, st.LastResponse)
	assert.Equal(t, "chat-1", s.ChatID())
}

func TestSendWhileLoadingIsRejected(t *testing.T) {
	relay := &fakeRelay{
		body:    json.RawMessage(`{"text":"done"}`),
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	s := New(relay, "chat-1")

	s.SetInput("first")
	done := make(chan bool)
	go func() { done <- s.Send(context.Background()) }()
	<-relay.started

	st := s.Snapshot()
	assert.True(t, st.IsLoading)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "first", st.Messages[0].Content)

	s.SetInput("second")
	assert.False(t, s.Send(context.Background()))
	assert.Len(t, s.Snapshot().Messages, 1)

	close(relay.release)
	require.True(t, <-done)

	st = s.Snapshot()
	assert.False(t, st.IsLoading)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "done", st.Messages[1].Content)
	assert.Equal(t, "second", st.Input)
	assert.Equal(t, 1, relay.calls())
}

func TestSubscribe(t *testing.T) {
	relay := &fakeRelay{body: json.RawMessage(`{"reply":"pong"}`)}
	s := New(relay, "chat-1")

	var calls atomic.Int32
	var loadingSeen atomic.Bool
	unsubscribe := s.Subscribe(func(st State) {
		calls.Add(1)
		if st.IsLoading {
			loadingSeen.Store(true)
		}
	})

	s.SetInput("ping")
	s.Send(context.Background())
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, loadingSeen.Load())

	unsubscribe()
	s.Clear()
	require.Never(t, func() bool { return calls.Load() != 3 }, 50*time.Millisecond, 10*time.Millisecond)
}
