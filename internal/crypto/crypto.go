// Package crypto provides NaCl secretbox encryption for clipstash frames.
//
// A 32-byte symmetric key is derived from the shared token using HKDF-SHA256.
// Each frame payload is encrypted with a fresh random 24-byte nonce prepended
// to the ciphertext:
//
//	[ 24-byte nonce ][ ciphertext ]
//
// When no token is configured the wire layer passes a nil key and frames are
// sent as plain JSON; unix-socket connections never use this package.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize is the secretbox key length in bytes.
	KeySize = 32

	nonceSize = 24
)

var hkdfInfo = []byte("clipstash-v1")

// DeriveKey derives a 32-byte secretbox key from a token string using
// HKDF-SHA256. Server and client must share the same token.
func DeriveKey(token string) (*[KeySize]byte, error) {
	h := hkdf.New(sha256.New, []byte(token), nil, hkdfInfo)
	var key [KeySize]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext with key, prepending a random nonce.
func Seal(plaintext []byte, key *[KeySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open decrypts nonce+ciphertext with key.
func Open(ciphertext []byte, key *[KeySize]byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("decryption failed (wrong token?)")
	}
	return plain, nil
}
