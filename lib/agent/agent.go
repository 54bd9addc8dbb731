// Package agent keeps a set of outbound connections to the server open
// and multiplexes framed requests over each of them. The agent dials
// out because it lives behind the campus NAT where the server cannot
// reach it.
package agent

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"kite-agent/lib/protocol"
)

var tracer = otel.Tracer("lib/agent")

// Handler answers one decoded request frame. It receives the raw CBOR
// payload and returns the response code plus the encoded body.
// Implementations must be safe for concurrent use, frames on a single
// connection are handled in parallel.
type Handler interface {
	Handle(ctx context.Context, payload []byte) (uint16, []byte)
}

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
	sendQueueSize  = 64
)

type Agent struct {
	// Name identifies this agent to the server.
	Name string
	// Addr is the server's host:port.
	Addr string
	// Connections is how many parallel links to keep open.
	Connections int

	handler Handler
	dialer  net.Dialer
	tags    *tagger
	wg      sync.WaitGroup
}

func New(name, addr string, connections int, handler Handler) *Agent {
	if connections < 1 {
		connections = 1
	}
	return &Agent{
		Name:        name,
		Addr:        addr,
		Connections: connections,
		handler:     handler,
		dialer:      net.Dialer{Timeout: 10 * time.Second},
		tags:        newTagger(),
	}
}

// Run keeps Connections links alive until ctx is cancelled. Each link
// reconnects on its own with exponential backoff.
func (a *Agent) Run(ctx context.Context) {
	for i := 0; i < a.Connections; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.maintainLink(ctx)
		}()
	}
	a.wg.Wait()
}

func (a *Agent) maintainLink(ctx context.Context) {
	backoff := initialBackoff
	for {
		slot := a.tags.acquire()
		log := slog.With("slot", slot, "server", a.Addr)

		conn, err := a.dialer.DialContext(ctx, "tcp", a.Addr)
		if err != nil {
			a.tags.release(slot)
			if ctx.Err() != nil {
				return
			}
			log.Warn("dial failed, waiting to retry", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		log.Info("connected to server")
		backoff = initialBackoff
		a.serveConn(ctx, conn, log)
		a.tags.release(slot)
		log.Info("connection closed")

		if ctx.Err() != nil {
			return
		}
	}
}

// serveConn runs one link until the peer hangs up or ctx is cancelled.
func (a *Agent) serveConn(ctx context.Context, conn net.Conn, log *slog.Logger) {
	link := &link{
		agent:  a,
		conn:   conn,
		sendCh: make(chan *protocol.Response, sendQueueSize),
		halt:   make(chan struct{}),
		log:    log,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		link.receiveLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		link.sendLoop()
	}()

	go func() {
		select {
		case <-ctx.Done():
			link.stop()
		case <-link.halt:
		}
	}()

	wg.Wait()
}

type link struct {
	agent    *Agent
	conn     net.Conn
	sendCh   chan *protocol.Response
	halt     chan struct{}
	haltOnce sync.Once
	log      *slog.Logger
}

func (l *link) stop() {
	l.haltOnce.Do(func() {
		close(l.halt)
		l.conn.Close()
	})
}

// receiveLoop reads frames and fans each one out to its own handler
// goroutine. An empty request is a liveness probe, it is acknowledged
// inline without touching the handler.
func (l *link) receiveLoop(ctx context.Context) {
	defer l.stop()

	for {
		req, err := protocol.ReadRequest(l.conn)
		if err != nil {
			select {
			case <-l.halt:
			default:
				l.log.Warn("read failed, dropping connection", "error", err)
			}
			return
		}

		if len(req.Payload) == 0 {
			l.enqueue(&protocol.Response{Ack: req.Seq})
			continue
		}
		go l.handle(ctx, req)
	}
}

func (l *link) handle(ctx context.Context, req *protocol.Request) {
	ctx, span := tracer.Start(ctx, "HandleRequest")
	defer span.End()

	code, body := l.agent.handler.Handle(ctx, req.Payload)
	l.enqueue(&protocol.Response{Ack: req.Seq, Code: code, Payload: body})
}

func (l *link) enqueue(res *protocol.Response) {
	select {
	case l.sendCh <- res:
	case <-l.halt:
	}
}

// sendLoop is the only writer on the connection, so responses from
// concurrent handlers never interleave mid-frame.
func (l *link) sendLoop() {
	defer l.stop()

	for {
		select {
		case res := <-l.sendCh:
			if err := res.WriteTo(l.conn); err != nil {
				select {
				case <-l.halt:
				default:
					l.log.Warn("write failed, dropping connection", "error", err)
				}
				return
			}
		case <-l.halt:
			return
		}
	}
}
