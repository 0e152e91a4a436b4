package ws

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"realtime-service/internal/models"
)

// ConnState tracks the per-connection lifecycle.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

// Conn is the subset of *websocket.Conn the client uses; tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const sendBufferSize = 64

// Client wraps one websocket connection. The user field is set once during
// authentication and read-only afterwards; all room and presence state
// lives in the hub.
type Client struct {
	info  ConnInfo
	conn  Conn
	user  models.User
	send  chan []byte
	done  chan struct{}
	state atomic.Int32
	once  sync.Once
}

func newClient(conn Conn, info ConnInfo) *Client {
	c := &Client{
		info: info,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Client) ID() string        { return c.info.ConnID }
func (c *Client) User() models.User { return c.user }

func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }
func (c *Client) State() ConnState     { return ConnState(c.state.Load()) }

// enqueue queues an outbound frame without blocking. A full buffer means
// the consumer is not draining fast enough; the frame is dropped, so a
// slow connection loses its own events but never stalls a broadcast. The
// connection itself stays up.
func (c *Client) enqueue(payload []byte) {
	if payload == nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		log.Printf("ws send buffer full, dropping frame conn=%s user=%d", c.info.ConnID, c.user.ID)
	}
}

func (c *Client) sendEvent(event string, data any) {
	c.enqueue(encodeEvent(event, data))
}

func (c *Client) sendError(code, message, details string) {
	c.sendEvent(EvError, ErrorPayload{Message: message, Code: code, Details: details})
}

// writePump drains the send channel onto the socket. It is the only writer
// to the underlying connection after the handshake.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// close releases the pumps exactly once.
func (c *Client) close() {
	c.once.Do(func() {
		c.setState(StateClosed)
		close(c.done)
	})
}
