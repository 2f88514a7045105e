// Package security seals artifact payload blobs before they reach the
// pending-state store. Minutes and task lists carry meeting content, so
// rows at rest are ciphertext envelopes rather than raw JSON.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-approvals/core"
)

type Option func(*AppKeyPayloadCipher)

// AppKeyPayloadCipher seals payloads with AES-256-GCM under a single
// application key. Key material of any length is accepted; anything
// that is not a valid AES key size is hashed down to 32 bytes.
type AppKeyPayloadCipher struct {
	key     []byte
	keyID   string
	version int
}

func WithKeyID(id string) Option {
	return func(c *AppKeyPayloadCipher) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			c.keyID = trimmed
		}
	}
}

func WithKeyVersion(version int) Option {
	return func(c *AppKeyPayloadCipher) {
		if version > 0 {
			c.version = version
		}
	}
}

func NewAppKeyPayloadCipher(keyMaterial []byte, opts ...Option) (*AppKeyPayloadCipher, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	c := &AppKeyPayloadCipher{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

func NewAppKeyPayloadCipherFromString(key string, opts ...Option) (*AppKeyPayloadCipher, error) {
	return NewAppKeyPayloadCipher([]byte(key), opts...)
}

func (c *AppKeyPayloadCipher) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: payload cipher is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return encodeEnvelope(envelope{
		KeyID:      c.keyID,
		Version:    c.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodeCiphertextPayload(nonce),
		Ciphertext: encodeCiphertextPayload(sealed),
	})
}

func (c *AppKeyPayloadCipher) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: payload cipher is nil")
	}
	env, _, err := decodeEnvelope(ciphertext, envelopeDecodeOptions{
		AllowMissingPrefix: true,
		DefaultAlgorithm:   envelopeAlgorithm,
	})
	if err != nil {
		return nil, err
	}
	if env.Algorithm != envelopeAlgorithm {
		return nil, fmt.Errorf("security: unsupported envelope algorithm %q", env.Algorithm)
	}
	if env.KeyID != "" && env.KeyID != c.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", env.KeyID, c.keyID)
	}
	if env.Version > 0 && env.Version != c.version {
		return nil, fmt.Errorf("security: key version mismatch: got %d want %d", env.Version, c.version)
	}

	nonce, err := decodeCiphertextPayload(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	sealed, err := decodeCiphertextPayload(env.Ciphertext)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (c *AppKeyPayloadCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

func (c *AppKeyPayloadCipher) Version() int {
	if c == nil {
		return 0
	}
	return c.version
}

func (c *AppKeyPayloadCipher) Metadata() (string, int) {
	return c.KeyID(), c.Version()
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.PayloadCipher = (*AppKeyPayloadCipher)(nil)
