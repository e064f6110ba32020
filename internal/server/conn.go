package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/wire"
)

const (
	sendQueueDepth = 64
	authTimeout    = 10 * time.Second
)

var connSeq atomic.Int64

// conn is one client connection: CONNECTED → (read → dispatch → respond)* →
// CLOSED. It implements hub.Client. A dedicated writer goroutine drains the
// send queue so a slow client never blocks dispatch or broadcasts.
type conn struct {
	id      string
	wc      *wire.Conn
	srv     *Server
	secured bool

	sendCh chan *message.Response
	done   chan struct{}
	once   sync.Once
}

func newConn(netConn net.Conn, srv *Server, secured bool) *conn {
	var key = srv.key
	if !secured {
		key = nil
	}
	id := fmt.Sprintf("%s#%d", remoteName(netConn), connSeq.Add(1))
	return &conn{
		id:      id,
		wc:      wire.New(netConn, key),
		srv:     srv,
		secured: secured,
		sendCh:  make(chan *message.Response, sendQueueDepth),
		done:    make(chan struct{}),
	}
}

func remoteName(c net.Conn) string {
	if addr := c.RemoteAddr(); addr != nil && addr.String() != "" && addr.String() != "@" {
		return addr.String()
	}
	return "local"
}

func (c *conn) ID() string { return c.id }

// Send implements hub.Client. Non-blocking: returns false when the
// connection is closed or its queue is saturated.
func (c *conn) Send(msg *message.Response) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.sendCh <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close implements hub.Client. Idempotent.
func (c *conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.wc.Close()
	})
}

// serve runs the connection lifecycle: optional auth, registry membership,
// writer goroutine, then the read/dispatch loop until the peer goes away.
func (c *conn) serve(ctx context.Context) {
	defer c.Close()
	log := slog.With("client", c.id)

	if c.secured {
		if !c.authenticate(log) {
			return
		}
	}

	c.srv.hub.Register(c)
	defer c.srv.hub.Unregister(c)

	go c.writer(log)

	for {
		req, err := c.wc.ReadRequest()
		if err != nil {
			// Framing violations and closed peers both end the connection.
			if !errors.Is(err, net.ErrClosed) {
				log.Info("connection closed", "err", err)
			}
			return
		}

		if resp := c.srv.dispatch(ctx, c, req); resp != nil {
			if !c.Send(resp) {
				return
			}
		}
	}
}

// authenticate requires the first frame to be an auth request carrying the
// shared token. The frame arrives encrypted, so a wrong token usually fails
// at decrypt; the explicit check covers a correctly-keyed but malformed
// opening request.
func (c *conn) authenticate(log *slog.Logger) bool {
	c.wc.SetReadDeadline(authTimeout)
	req, err := c.wc.ReadRequest()
	c.wc.SetReadDeadline(0)
	if err != nil {
		log.Warn("auth read failed", "err", err)
		return false
	}
	if req.Action != message.ActionAuth || req.Token != c.srv.opts.Token {
		log.Warn("auth failed")
		_ = c.wc.WriteResponse(message.Errorf("auth_failed"))
		return false
	}
	log.Info("authenticated")
	return true
}

// writer drains the send queue. A write failure tears the connection down,
// which in turn ends the read loop.
func (c *conn) writer(log *slog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendCh:
			if err := c.wc.WriteResponse(msg); err != nil {
				log.Error("write failed", "err", err)
				c.Close()
				return
			}
		}
	}
}
