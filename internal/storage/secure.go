package storage

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const securePrefix = "secure_"

// secureKeyInfo binds derived keys to this layer so the same secret can be
// reused elsewhere without overlap.
var secureKeyInfo = []byte("layerstore/secure/v1")

// SecureOptions controls the reversible transforms applied before storage.
type SecureOptions struct {
	// Compress gzips the serialized value before encryption.
	Compress bool
}

// SecureStore applies reversible byte transforms to values before handing
// them to the underlying store: JSON serialization, optional gzip, then
// ChaCha20-Poly1305 authenticated encryption with a key derived from the
// configured secret. Transformed records live under "secure_<key>".
//
// Any failure to reverse the transforms (wrong secret, corrupted or
// tampered bytes) reads as absence, never an error.
type SecureStore struct {
	base KV
	aead cipher.AEAD
}

// NewSecure wraps base with value encryption keyed by secret.
func NewSecure(base KV, secret []byte) (*SecureStore, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secure store: secret is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, secureKeyInfo), key); err != nil {
		return nil, fmt.Errorf("secure store: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secure store: init cipher: %w", err)
	}
	return &SecureStore{base: base, aead: aead}, nil
}

// SetSecure transforms value and stores the sealed record.
func (l *SecureStore) SetSecure(key string, value any, opts SecureOptions) error {
	plain, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize secure value: %w", err)
	}
	if opts.Compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(plain); err != nil {
			return fmt.Errorf("failed to compress secure value: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress secure value: %w", err)
		}
		plain = buf.Bytes()
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	// The logical key is additional authenticated data, so a sealed record
	// cannot be replayed under a different key.
	sealed := l.aead.Seal(nil, nonce, plain, []byte(key))

	record := map[string]any{
		"data":       base64.StdEncoding.EncodeToString(sealed),
		"nonce":      base64.StdEncoding.EncodeToString(nonce),
		"compressed": opts.Compress,
		"timestamp":  time.Now().UnixMilli(),
	}
	return l.base.Set(securePrefix+key, record)
}

// GetSecure reverses the transforms and returns the original value.
func (l *SecureStore) GetSecure(key string) (any, bool) {
	raw, ok := l.base.Get(securePrefix + key)
	if !ok {
		return nil, false
	}
	record, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	dataText, ok := record["data"].(string)
	if !ok {
		return nil, false
	}
	nonceText, ok := record["nonce"].(string)
	if !ok {
		return nil, false
	}
	sealed, err := base64.StdEncoding.DecodeString(dataText)
	if err != nil {
		return nil, false
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceText)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, false
	}
	plain, err := l.aead.Open(nil, nonce, sealed, []byte(key))
	if err != nil {
		return nil, false
	}
	if compressed, _ := record["compressed"].(bool); compressed {
		zr, err := gzip.NewReader(bytes.NewReader(plain))
		if err != nil {
			return nil, false
		}
		plain, err = io.ReadAll(zr)
		if cerr := zr.Close(); err != nil || cerr != nil {
			return nil, false
		}
	}
	var value any
	if err := json.Unmarshal(plain, &value); err != nil {
		return nil, false
	}
	return value, true
}

// RemoveSecure deletes the sealed record.
func (l *SecureStore) RemoveSecure(key string) error {
	return l.base.Remove(securePrefix + key)
}
