package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/ipc"
	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/wire"
)

// dialDaemon connects to a running daemon: the local Unix socket by default,
// or TCP when --server was given explicitly. TCP connections authenticate
// with the token as their first frame.
func dialDaemon(cmd *cobra.Command, v *viper.Viper) (*wire.Conn, string, error) {
	if !cmd.Flags().Changed("server") && ipc.IsRunning() {
		conn, err := ipc.Dial()
		if err == nil {
			return wire.New(conn, nil), fmt.Sprintf("ipc (%s)", ipc.SocketPath()), nil
		}
	}

	serverAddr := v.GetString("server")
	token := v.GetString("token")

	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", serverAddr, err)
	}

	var key *[crypto.KeySize]byte
	if token != "" {
		key, err = crypto.DeriveKey(token)
		if err != nil {
			conn.Close()
			return nil, "", err
		}
	}

	wc := wire.New(conn, key)
	if token != "" {
		if err := wc.WriteRequest(&message.Request{Action: message.ActionAuth, Token: token}); err != nil {
			wc.Close()
			return nil, "", fmt.Errorf("auth: %w", err)
		}
	}
	return wc, fmt.Sprintf("tcp (%s)", serverAddr), nil
}

// addClientFlags adds the flags shared by every daemon-talking command.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "localhost:8763", "daemon address (used when no local daemon is running)")
	cmd.Flags().String("token", "", "shared secret")
	cmd.Flags().Bool("json", false, "output raw JSON")
}

// roundTrip sends one request and reads responses until one matching want
// arrives, skipping unrelated broadcasts.
func roundTrip(wc *wire.Conn, req *message.Request, want message.Type) (*message.Response, error) {
	if err := wc.WriteRequest(req); err != nil {
		return nil, err
	}
	for {
		resp, err := wc.ReadResponse()
		if err != nil {
			return nil, err
		}
		if resp.Type == message.TypeError {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		if resp.Type == want {
			return resp, nil
		}
	}
}
