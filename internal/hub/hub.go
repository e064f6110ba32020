// Package hub implements the broadcast hub: a registry of connected clients
// and best-effort fan-out of unsolicited notifications.
//
// It is transport-agnostic; anything that can accept a Response non-blockingly
// can register. The hub is owned by the server and injected into the change
// watcher, not a process global.
package hub

import (
	"log/slog"
	"sync"

	"go.klb.dev/clipstash/internal/message"
)

// Client is a connected UI client able to receive broadcasts.
type Client interface {
	ID() string
	// Send queues a message for delivery. Must be non-blocking; returns
	// false when the client can no longer accept messages.
	Send(*message.Response) bool
	// Close tears the connection down.
	Close()
}

// Hub tracks connected clients and fans out notifications to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{clients: make(map[string]Client)}
}

// Register adds a client to the registry.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	total := len(h.clients)
	h.mu.Unlock()

	slog.Info("client registered", "client", c.ID(), "total", total)
}

// Unregister removes a client from the registry. Safe to call twice.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	_, present := h.clients[c.ID()]
	delete(h.clients, c.ID())
	total := len(h.clients)
	h.mu.Unlock()

	if present {
		slog.Info("client unregistered", "client", c.ID(), "total", total)
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers msg to every registered client, best-effort. Each send
// is issued independently: a dead or saturated client is logged, removed,
// and closed without preventing delivery to the others. Clients not
// connected at broadcast time simply miss the notification; they catch up
// on their next history read.
func (h *Hub) Broadcast(msg *message.Response) {
	h.mu.RLock()
	targets := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.Send(msg) {
			slog.Warn("broadcast send failed, dropping client", "client", c.ID(), "type", msg.Type)
			h.Unregister(c)
			c.Close()
		}
	}
}
