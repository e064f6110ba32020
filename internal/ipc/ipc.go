// Package ipc provides helpers for the local Unix-socket channel that UI
// clients and CLI tools use to reach a running clipstash daemon without
// opening TCP connections.
package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SocketPath returns the platform-appropriate path for the daemon socket.
//
//   - $CLIPSTASH_SOCKET when set
//   - $XDG_RUNTIME_DIR/clipstash.sock on Linux desktops
//   - $TMPDIR/clipstash.sock otherwise
func SocketPath() string {
	if s := os.Getenv("CLIPSTASH_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "clipstash.sock")
	}
	return filepath.Join(os.TempDir(), "clipstash.sock")
}

// IsRunning reports whether a daemon appears to be listening on the socket.
// It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := net.Dial("unix", SocketPath())
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a net.Listener on the socket path. A stale socket file
// from a previous (crashed) run is removed, but only after confirming
// nothing answers on it, so a second instance cannot steal the socket out
// from under a live daemon.
func Listen() (net.Listener, error) {
	path := SocketPath()
	if c, err := net.Dial("unix", path); err == nil {
		_ = c.Close()
		return nil, fmt.Errorf("socket %s already in use by a running instance", path)
	}
	_ = os.Remove(path)
	return net.Listen("unix", path)
}

// Dial connects to the daemon socket.
func Dial() (net.Conn, error) {
	return net.Dial("unix", SocketPath())
}
