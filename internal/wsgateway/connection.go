package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohamedkhairy/feedmix/internal/models"
)

// errSendBufferFull is returned when a slow client falls behind
var errSendBufferFull = errors.New("send buffer full")

// Connection represents a WebSocket connection with a client
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	lastPong  time.Time
}

// NewConnection creates a new WebSocket connection. conn may be nil in tests.
func NewConnection(id string, userID string, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:       id,
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		ctx:      ctx,
		cancel:   cancel,
		lastPong: time.Now(),
	}
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// SendUpdate queues a ranking update for the client
func (c *Connection) SendUpdate(update models.ToplistUpdate) error {
	return c.enqueue(ServerMessage{Type: MessageTypeRankingUpdate, Data: update})
}

// enqueue hands a message to the write pump without blocking. Messages to a
// client whose buffer is full are dropped.
func (c *Connection) enqueue(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}
