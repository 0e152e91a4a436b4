package ws

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"realtime-service/internal/models"
)

// fakeConn is an in-memory Conn: reads come from a channel the test feeds,
// writes are captured.
type fakeConn struct {
	in     chan []byte
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	raw, ok := <-f.in
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, raw, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
	}
	return nil
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func newTestClient(userID int, username string) *Client {
	c := newClient(newFakeConn(), ConnInfo{ConnID: uuid.NewString(), ConnectedAt: time.Now()})
	c.user = models.User{ID: userID, Username: username}
	return c
}

// drainEvents empties the client's send buffer into decoded envelopes.
func drainEvents(c *Client) []envelope {
	var evs []envelope
	for {
		select {
		case raw := <-c.send:
			var env envelope
			if err := json.Unmarshal(raw, &env); err == nil {
				evs = append(evs, env)
			}
		default:
			return evs
		}
	}
}

func countEvents(evs []envelope, name string) int {
	n := 0
	for _, ev := range evs {
		if ev.Event == name {
			n++
		}
	}
	return n
}

// waitForEvent blocks until the client receives the named event or the
// timeout elapses.
func waitForEvent(t *testing.T, c *Client, name string, timeout time.Duration) envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case raw := <-c.send:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("undecodable frame: %v", err)
			}
			if env.Event == name {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}
