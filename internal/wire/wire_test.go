package wire

import (
	"encoding/base64"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/ingest"
	"go.klb.dev/clipstash/internal/message"
)

// pipePair returns two framed conns joined by an in-memory pipe.
func pipePair(t *testing.T, key *[crypto.KeySize]byte) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return New(a, key), New(b, key)
}

func TestFrame_Roundtrip(t *testing.T) {
	client, server := pipePair(t, nil)

	payloads := [][]byte{
		[]byte(`{"action":"get_history"}`),
		[]byte("payload with\nembedded\nnewlines"),
		[]byte("x"),
	}

	done := make(chan error, 1)
	go func() {
		for _, p := range payloads {
			if err := client.WriteFrame(p); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for _, want := range payloads {
		got, err := server.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, <-done)
}

func TestFrame_ExactWireFormat(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	wc := New(a, nil)

	go func() { _ = wc.WriteFrame([]byte("hello")) }()

	buf := make([]byte, 64)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "6\nhello\n", string(buf[:n]), "length counts payload plus trailing newline")
}

func TestReadFrame_BadPrefix(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	wc := New(b, nil)

	go func() {
		_, _ = a.Write([]byte("notanumber\n{}\n"))
	}()

	_, err := wc.ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad length prefix")
}

func TestReadFrame_LengthOutOfRange(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	wc := New(b, nil)

	go func() {
		_, _ = a.Write([]byte(fmt.Sprintf("%d\n", MaxFrameSize+1)))
	}()

	_, err := wc.ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadFrame_Truncated(t *testing.T) {
	a, b := net.Pipe()
	wc := New(b, nil)
	t.Cleanup(func() { b.Close() })

	go func() {
		_, _ = a.Write([]byte("20\nshort"))
		a.Close()
	}()

	_, err := wc.ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestReadFrame_MissingTerminator(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	wc := New(b, nil)

	go func() {
		// Length says 3 but the third byte is not a newline.
		_, _ = a.Write([]byte("3\nabc"))
	}()

	_, err := wc.ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminator")
}

func TestFrame_Encrypted(t *testing.T) {
	key, err := crypto.DeriveKey("shared-secret")
	require.NoError(t, err)
	client, server := pipePair(t, key)

	go func() { _ = client.WriteFrame([]byte("confidential")) }()

	got, err := server.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("confidential"), got)
}

func TestFrame_KeyMismatch(t *testing.T) {
	goodKey, err := crypto.DeriveKey("right")
	require.NoError(t, err)
	badKey, err := crypto.DeriveKey("wrong")
	require.NoError(t, err)

	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	sender := New(a, goodKey)
	receiver := New(b, badKey)

	go func() { _ = sender.WriteFrame([]byte("secret")) }()

	_, err = receiver.ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestRequestResponse_Roundtrip(t *testing.T) {
	client, server := pipePair(t, nil)

	go func() {
		_ = client.WriteRequest(&message.Request{
			Action: message.ActionGetHistory,
			Limit:  25,
			Filters: &message.Filters{
				Types:         []string{"text", "url"},
				FavoritesOnly: true,
			},
		})
	}()

	req, err := server.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, message.ActionGetHistory, req.Action)
	assert.Equal(t, 25, req.Limit)
	require.NotNil(t, req.Filters)
	assert.Equal(t, []string{"text", "url"}, req.Filters.Types)
	assert.True(t, req.Filters.FavoritesOnly)

	go func() {
		_ = server.WriteResponse(&message.Response{
			Type:  message.TypeHistory,
			Items: []message.Item{{ID: 7, Type: "text", Content: "hi"}},
		})
	}()

	resp, err := client.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, message.TypeHistory, resp.Type)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(7), resp.Items[0].ID)
}

func TestWriteFrame_RefusesOversizePayload(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	wc := New(a, nil)

	// No reader on the far end: the oversize check must fire before any
	// bytes hit the wire.
	err := wc.WriteFrame(make([]byte, MaxFrameSize))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestFrameCap_CoversLargestFilePayload(t *testing.T) {
	// full_file responses carry base64 file content inside the JSON body;
	// on the encrypted path the whole body is sealed (nonce + tag = 40
	// bytes) and base64-encoded a second time.
	body := base64.StdEncoding.EncodedLen(ingest.MaxFileSize) + 4096
	frame := base64.StdEncoding.EncodedLen(body+40) + 1
	assert.LessOrEqual(t, frame, MaxFrameSize)
}

func TestFullFileResponse_RoundtripAtFileCap(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates several hundred MB")
	}
	client, server := pipePair(t, nil)

	want := &message.Response{
		Type:     message.TypeFullFile,
		Name:     "disk.img",
		MimeType: "application/octet-stream",
		Content:  base64.StdEncoding.EncodeToString(make([]byte, ingest.MaxFileSize)),
	}

	done := make(chan error, 1)
	go func() { done <- server.WriteResponse(want) }()

	got, err := client.ReadResponse()
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, want.Name, got.Name)
	assert.Len(t, got.Content, len(want.Content))
}
