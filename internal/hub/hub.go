// Package hub tracks WebSocket connections and the chat each one follows.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID     string
	ChatID string
	Conn   *websocket.Conn
	Send   chan []byte
	hub    *Hub
	mu     sync.Mutex
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// chats maps chatId to the set of connection IDs following it
	chats map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *chatMessage
	done       chan struct{}

	mu sync.RWMutex
}

type chatMessage struct {
	ChatID string
	Data   []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		chats:       make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *chatMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.ChatID != "" {
				if h.chats[conn.ChatID] == nil {
					h.chats[conn.ChatID] = make(map[string]bool)
				}
				h.chats[conn.ChatID][conn.ID] = true
			}
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Str("chat_id", conn.ChatID).Msg("connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if conn.ChatID != "" && h.chats[conn.ChatID] != nil {
					delete(h.chats[conn.ChatID], conn.ID)
					if len(h.chats[conn.ChatID]) == 0 {
						delete(h.chats, conn.ChatID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Msg("connection unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.chats[msg.ChatID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					log.Warn().Str("conn_id", connID).Msg("connection buffer full, closing")
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			return
		}
	}
}

// Stop ends the main loop.
func (h *Hub) Stop() {
	close(h.done)
}

// NewConnection wraps a WebSocket in a Connection following chatID. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn, chatID string) *Connection {
	return &Connection{
		ID:     uuid.New().String(),
		ChatID: chatID,
		Conn:   ws,
		Send:   make(chan []byte, 256),
		hub:    h,
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast sends data to every connection following chatID.
func (h *Hub) Broadcast(chatID string, data []byte) {
	h.broadcast <- &chatMessage{ChatID: chatID, Data: data}
}

// BroadcastJSON sends a JSON message to every connection following chatID.
func (h *Hub) BroadcastJSON(chatID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(chatID, data)
	return nil
}

// SendToConnection queues data for a single connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) (err error) {
	// Send may already be closed by Unregister.
	defer func() {
		if recover() != nil {
			err = ErrConnectionClosed
		}
	}()

	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection queues a JSON message for a single connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// ChatCount returns the number of chats with at least one connection.
func (h *Hub) ChatCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats)
}

// HasActiveConnections reports whether anyone follows chatID.
func (h *Hub) HasActiveConnections(chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying WebSocket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &SendError{reason: "send buffer full"}

// ErrConnectionClosed is returned when sending to an unregistered connection.
var ErrConnectionClosed = &SendError{reason: "connection closed"}

// SendError is returned when a message cannot be queued.
type SendError struct {
	reason string
}

func (e *SendError) Error() string {
	return e.reason
}
