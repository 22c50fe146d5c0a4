package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/devastator99/socratic-gateway/pkg/types"
)

// Connection wraps one gorilla websocket with a single writer goroutine,
// so broker fan-out and direct replies from many goroutines never race on
// the underlying conn. The buffered write channel doubles as the
// connection's outbound queue.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	id           string
	createdAt    time.Time
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu    sync.RWMutex
	actor types.Actor
}

// NewConnection wraps an accepted websocket and starts its write loop.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		id:           uuid.New().String(),
		createdAt:    time.Now(),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteFrame marshals v and queues it for the writer goroutine.
func (c *Connection) WriteFrame(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the writer goroutine and the underlying socket. Safe
// to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// ID returns the process-local connection identifier assigned at accept.
func (c *Connection) ID() string {
	return c.id
}

// CreatedAt returns the accept time.
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// SetActor stores the verified actor after the authentication handshake.
func (c *Connection) SetActor(actor types.Actor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actor = actor
}

// Actor returns the owning actor; zero-valued until authenticated.
func (c *Connection) Actor() types.Actor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actor
}

// Done exposes the connection's cancellation for ping tickers.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
