// Package wire handles reading and writing length-prefixed JSON frames
// over a net.Conn, with optional NaCl secretbox encryption.
//
// Frame format (unencrypted):
//
//	<byte-length>\n<json>\n
//
// where byte-length counts the JSON payload plus its trailing newline. The
// explicit prefix guards against JSON payloads that contain embedded
// newlines, which a purely newline-delimited framing would split.
//
// Frame format (encrypted):
//
//	<byte-length>\n<base64(nonce+ciphertext)>\n
//
// The encrypted form is just a base64 blob inside the same framing so that
// the length-prefix logic is identical in both cases.
package wire

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/message"
)

const (
	// MaxFrameSize is the largest frame we will read or write. Full file
	// contents travel over the wire on get_full_image, so this has to cover
	// a file at the 100 MiB ingest cap after base64 expansion inside the
	// JSON body (~134 MiB) and a second base64 pass plus secretbox overhead
	// on the encrypted path (~178 MiB). 256 MiB leaves headroom for the
	// JSON envelope.
	MaxFrameSize = 256 * 1024 * 1024

	writeDeadline = 10 * time.Second
)

// Conn wraps a net.Conn with buffered length-prefixed framing and optional
// encryption.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	key  *[crypto.KeySize]byte // nil = no encryption
}

// New wraps conn. If key is non-nil every frame payload is encrypted with
// NaCl secretbox before being written and decrypted after being read.
func New(conn net.Conn, key *[crypto.KeySize]byte) *Conn {
	return &Conn{
		conn: conn,
		br:   bufio.NewReaderSize(conn, 64*1024),
		key:  key,
	}
}

// Underlying returns the underlying net.Conn.
func (c *Conn) Underlying() net.Conn { return c.conn }

// SetReadDeadline sets or clears the read deadline.
func (c *Conn) SetReadDeadline(d time.Duration) {
	if d == 0 {
		_ = c.conn.SetReadDeadline(time.Time{})
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// WriteFrame writes one frame containing raw as its payload.
func (c *Conn) WriteFrame(raw []byte) error {
	payload := raw
	if c.key != nil {
		ct, err := crypto.Seal(raw, c.key)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		payload = []byte(base64.StdEncoding.EncodeToString(ct))
	}
	if len(payload)+1 > MaxFrameSize {
		// The peer would reject this as connection-ending; fail here instead
		// of sending a frame nobody can read.
		return fmt.Errorf("frame length %d out of range", len(payload)+1)
	}

	// Length counts the payload plus its trailing newline.
	var buf bytes.Buffer
	buf.Grow(len(payload) + 16)
	buf.WriteString(strconv.Itoa(len(payload) + 1))
	buf.WriteByte('\n')
	buf.Write(payload)
	buf.WriteByte('\n')

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err := c.conn.Write(buf.Bytes())
	_ = c.conn.SetWriteDeadline(time.Time{})
	return err
}

// ReadFrame reads one frame and returns its payload. Any framing violation
// (bad prefix, truncated body, missing terminator) is an error; callers
// treat it as connection-ending.
func (c *Conn) ReadFrame() ([]byte, error) {
	header, err := c.br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(string(bytes.TrimSuffix(header, []byte{'\n'})))
	if err != nil {
		return nil, fmt.Errorf("bad length prefix: %w", err)
	}
	if n <= 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("frame length %d out of range", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.br, body); err != nil {
		return nil, fmt.Errorf("truncated frame: %w", err)
	}
	if body[n-1] != '\n' {
		return nil, fmt.Errorf("frame missing terminator")
	}
	payload := body[:n-1]

	if c.key != nil {
		ct, err := base64.StdEncoding.DecodeString(string(payload))
		if err != nil {
			return nil, fmt.Errorf("base64 decode: %w", err)
		}
		payload, err = crypto.Open(ct, c.key)
		if err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
	}
	return payload, nil
}

// WriteRequest frames and sends a request.
func (c *Conn) WriteRequest(r *message.Request) error {
	raw, err := message.EncodeRequest(r)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return c.WriteFrame(raw)
}

// ReadRequest reads one frame and decodes it as a request.
func (c *Conn) ReadRequest() (*message.Request, error) {
	raw, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	return message.DecodeRequest(raw)
}

// WriteResponse frames and sends a response.
func (c *Conn) WriteResponse(r *message.Response) error {
	raw, err := message.EncodeResponse(r)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return c.WriteFrame(raw)
}

// ReadResponse reads one frame and decodes it as a response.
func (c *Conn) ReadResponse() (*message.Response, error) {
	raw, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	return message.DecodeResponse(raw)
}
