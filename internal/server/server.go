// Package server implements the connection hub: it accepts persistent client
// connections over unix socket and TCP, parses inbound requests, dispatches
// them to handlers, and pairs per-connection responses with hub broadcasts.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/hub"
	"go.klb.dev/clipstash/internal/ingest"
	"go.klb.dev/clipstash/internal/screenshot"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
)

// Options configures a Server.
type Options struct {
	// Token, when non-empty, requires TCP clients to authenticate with the
	// shared secret and encrypts their frames. Unix-socket connections are
	// local and owner-restricted; they skip both.
	Token string

	// ThumbMaxDim bounds the longest side of generated previews.
	ThumbMaxDim int

	// Screenshot runs the external capture tool, may be nil.
	Screenshot *screenshot.Capturer

	// RequestShutdown is invoked by the shutdown action after the
	// acknowledgement has been queued. May be nil.
	RequestShutdown func()
}

// Server owns the client registry and the request dispatch table.
type Server struct {
	gw       *store.Gateway
	settings *settings.Store
	pipeline *ingest.Pipeline
	hub      *hub.Hub
	opts     Options
	key      *[crypto.KeySize]byte

	uiPID atomic.Int64
}

// New wires a Server. The hub is shared with the change watcher so client
// mutations and watcher scans broadcast through the same registry.
func New(gw *store.Gateway, st *settings.Store, pipeline *ingest.Pipeline,
	h *hub.Hub, opts Options) (*Server, error) {

	s := &Server{
		gw:       gw,
		settings: st,
		pipeline: pipeline,
		hub:      h,
		opts:     opts,
	}
	if opts.Token != "" {
		key, err := crypto.DeriveKey(opts.Token)
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return s, nil
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// UIPID returns the last registered UI process id, or 0.
func (s *Server) UIPID() int { return int(s.uiPID.Load()) }

// ServeLocal accepts unix-socket connections until ctx is cancelled.
// Local clients are trusted: no auth, no encryption.
func (s *Server) ServeLocal(ctx context.Context, ln net.Listener) {
	s.acceptLoop(ctx, ln, false)
}

// ServeTCP accepts TCP connections until ctx is cancelled. When a token is
// configured, frames are encrypted and the first request must authenticate.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) {
	s.acceptLoop(ctx, ln, s.key != nil)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, secured bool) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept failed", "err", err)
			continue
		}

		c := newConn(netConn, s, secured)
		go c.serve(ctx)
	}
}
