// Package codec provides reversible encoding of message content at rest.
// A Codec instance is constructed with explicit key material and injected
// into the message store; there is no package-level cipher state.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Codec encodes message content before persistence and decodes it on read.
type Codec interface {
	Encode(plaintext string) (string, error)
	Decode(encoded string) (string, error)
}

// Plaintext is a pass-through Codec for deployments that store content
// unencrypted (or encrypt at a lower layer).
type Plaintext struct{}

// NewPlaintext returns a Codec that stores content as-is.
func NewPlaintext() Plaintext { return Plaintext{} }

func (Plaintext) Encode(s string) (string, error) { return s, nil }
func (Plaintext) Decode(s string) (string, error) { return s, nil }

// AESGCM encrypts content with AES-256-GCM. Each Encode call uses a fresh
// random nonce, prepended to the ciphertext; the result is base64-encoded
// for storage in a text column.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AESGCM codec from a 32-byte key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("codec: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: gcm mode: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Encode encrypts plaintext and returns base64(nonce || ciphertext).
func (c *AESGCM) Encode(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode. It fails if the payload was tampered with or
// encrypted under a different key.
func (c *AESGCM) Decode(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("codec: base64 decode: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("codec: payload shorter than nonce")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("codec: decrypt: %w", err)
	}
	return string(plain), nil
}
