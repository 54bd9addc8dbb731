package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"kite-agent/lib/protocol"
)

// ErrCallerClosed is returned for calls issued after the underlying
// connection has gone away.
var ErrCallerClosed = errors.New("caller connection closed")

// Caller is the server end of one agent link: it tags request frames,
// writes them out and pairs incoming responses back to their waiting
// callers. Tags come from a lowest-free-slot allocator, so they stay
// small and are reused as soon as the matching response lands. Useful
// for tests and debugging tools that need to talk to a live agent.
type Caller struct {
	conn net.Conn
	tags *tagger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *protocol.Response
	closed  bool
}

func NewCaller(conn net.Conn) *Caller {
	c := &Caller{
		conn:    conn,
		tags:    newTagger(),
		pending: make(map[uint64]chan *protocol.Response),
	}
	go c.readLoop()
	return c
}

func (c *Caller) readLoop() {
	for {
		res, err := protocol.ReadResponse(c.conn)
		if err != nil {
			c.shutdown()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[res.Ack]
		delete(c.pending, res.Ack)
		c.mu.Unlock()
		if !ok {
			slog.Debug("discarding response with stale ack", "ack", res.Ack)
			continue
		}
		c.tags.release(int(res.Ack))
		if ch == nil {
			// the call was abandoned; its tag was only now freed
			slog.Debug("discarding response for abandoned call", "ack", res.Ack)
			continue
		}
		ch <- res
	}
}

func (c *Caller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for seq, ch := range c.pending {
		if ch != nil {
			close(ch)
		}
		delete(c.pending, seq)
	}
}

// Call sends one payload and waits for the matching response.
func (c *Caller) Call(ctx context.Context, payload []byte) (*protocol.Response, error) {
	seq := uint64(c.tags.acquire())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.tags.release(int(seq))
		return nil, ErrCallerClosed
	}
	ch := make(chan *protocol.Response, 1)
	c.pending[seq] = ch
	c.mu.Unlock()

	req := &protocol.Request{Seq: seq, Payload: payload}
	c.writeMu.Lock()
	err := req.WriteTo(c.conn)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(seq)
		return nil, fmt.Errorf("write request %d: %w", seq, err)
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return nil, ErrCallerClosed
		}
		return res, nil
	case <-ctx.Done():
		c.forget(seq)
		return nil, ctx.Err()
	}
}

// forget abandons an in-flight call. The entry stays in the pending
// map as a tombstone and the tag stays held: a response may still be
// on the wire, and reusing the tag before it arrives would hand the
// stale response to a new call. The read loop frees both when the
// response lands, or shutdown drops everything on disconnect.
func (c *Caller) forget(seq uint64) {
	c.mu.Lock()
	if _, stillPending := c.pending[seq]; stillPending {
		c.pending[seq] = nil
	}
	c.mu.Unlock()
}

// Ping sends an empty frame, which the agent acknowledges without
// dispatching anything.
func (c *Caller) Ping(ctx context.Context) error {
	res, err := c.Call(ctx, nil)
	if err != nil {
		return err
	}
	if res.Code != protocol.CodeOK {
		return fmt.Errorf("ping answered with code %d", res.Code)
	}
	return nil
}

func (c *Caller) Close() error {
	c.shutdown()
	return c.conn.Close()
}
