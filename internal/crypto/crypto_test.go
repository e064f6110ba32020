package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	a, err := DeriveKey("token")
	require.NoError(t, err)
	b, err := DeriveKey("token")
	require.NoError(t, err)
	assert.Equal(t, a, b, "same token derives the same key")

	c, err := DeriveKey("other")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSealOpen_Roundtrip(t *testing.T) {
	key, err := DeriveKey("token")
	require.NoError(t, err)

	ct, err := Seal([]byte("payload"), key)
	require.NoError(t, err)
	assert.NotContains(t, string(ct), "payload")

	pt, err := Open(ct, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), pt)
}

func TestOpen_Tampered(t *testing.T) {
	key, err := DeriveKey("token")
	require.NoError(t, err)

	ct, err := Seal([]byte("payload"), key)
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0x01

	_, err = Open(ct, key)
	assert.Error(t, err)
}

func TestOpen_WrongKey(t *testing.T) {
	good, err := DeriveKey("right")
	require.NoError(t, err)
	bad, err := DeriveKey("wrong")
	require.NoError(t, err)

	ct, err := Seal([]byte("payload"), good)
	require.NoError(t, err)

	_, err = Open(ct, bad)
	assert.Error(t, err)
}

func TestOpen_TooShort(t *testing.T) {
	key, err := DeriveKey("token")
	require.NoError(t, err)

	_, err = Open([]byte("short"), key)
	assert.Error(t, err)
}
