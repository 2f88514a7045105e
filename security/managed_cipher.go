package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-approvals/core"
)

type ManagedEncryptRequest struct {
	KeyID      string
	KeyVersion int
	Plaintext  []byte
	Metadata   map[string]string
}

type ManagedEncryptResponse struct {
	Ciphertext []byte
}

type ManagedDecryptRequest struct {
	KeyID      string
	KeyVersion int
	Ciphertext []byte
	Metadata   map[string]string
}

type ManagedDecryptResponse struct {
	Plaintext []byte
}

// ManagedKeyClient is the slice of an external key service (KMS,
// Vault transit, or similar) the cipher needs. Key material never
// leaves the service.
type ManagedKeyClient interface {
	Encrypt(ctx context.Context, req ManagedEncryptRequest) (ManagedEncryptResponse, error)
	Decrypt(ctx context.Context, req ManagedDecryptRequest) (ManagedDecryptResponse, error)
}

type ManagedOption func(*ManagedKeyCipher)

type managedKeyRef struct {
	KeyID   string
	Version int
}

func (r managedKeyRef) id() string {
	return fmt.Sprintf("%s:%d", r.KeyID, r.Version)
}

// ManagedKeyCipher delegates payload sealing to an external key
// service and records the envelope metadata needed to route the
// decrypt call back to the right key version.
type ManagedKeyCipher struct {
	client          ManagedKeyClient
	active          managedKeyRef
	decryptAllowed  map[string]managedKeyRef
	rotationWindows map[string]KeyRotationWindow
	allowAnyDecrypt bool
	metadata        map[string]string
	now             func() time.Time
}

func NewManagedKeyCipher(client ManagedKeyClient, keyID string, version int, opts ...ManagedOption) (*ManagedKeyCipher, error) {
	ref, err := newManagedKeyRef(keyID, version)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("security: managed key client is required")
	}
	c := &ManagedKeyCipher{
		client:          client,
		active:          ref,
		decryptAllowed:  map[string]managedKeyRef{ref.id(): ref},
		rotationWindows: map[string]KeyRotationWindow{},
		metadata:        map[string]string{},
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c, nil
}

// WithManagedDecryptCompatibilityKey allows envelopes sealed under a
// previous key version to keep decrypting after a rotation.
func WithManagedDecryptCompatibilityKey(keyID string, version int) ManagedOption {
	return func(c *ManagedKeyCipher) {
		if c == nil {
			return
		}
		ref, err := newManagedKeyRef(keyID, version)
		if err != nil {
			return
		}
		c.decryptAllowed[ref.id()] = ref
	}
}

func WithManagedRotationWindow(keyID string, version int, window KeyRotationWindow) ManagedOption {
	return func(c *ManagedKeyCipher) {
		if c == nil {
			return
		}
		ref, err := newManagedKeyRef(keyID, version)
		if err != nil {
			return
		}
		c.rotationWindows[ref.id()] = window
	}
}

func WithManagedAllowAnyDecryptKey(allow bool) ManagedOption {
	return func(c *ManagedKeyCipher) {
		if c == nil {
			return
		}
		c.allowAnyDecrypt = allow
	}
}

func WithManagedMetadata(metadata map[string]string) ManagedOption {
	return func(c *ManagedKeyCipher) {
		if c == nil {
			return
		}
		c.metadata = copyStringMap(metadata)
	}
}

func WithManagedClock(now func() time.Time) ManagedOption {
	return func(c *ManagedKeyCipher) {
		if c == nil {
			return
		}
		c.now = now
	}
}

func (c *ManagedKeyCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: payload cipher is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	if !c.rotationWindowAllows(c.active) {
		return nil, fmt.Errorf("security: managed key %q version %d is outside the configured rotation window", c.active.KeyID, c.active.Version)
	}

	response, err := c.client.Encrypt(ctx, ManagedEncryptRequest{
		KeyID:      c.active.KeyID,
		KeyVersion: c.active.Version,
		Plaintext:  append([]byte(nil), plaintext...),
		Metadata:   copyStringMap(c.metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("security: managed encrypt: %w", err)
	}
	if len(response.Ciphertext) == 0 {
		return nil, fmt.Errorf("security: managed encrypt returned empty ciphertext")
	}
	return encodeEnvelope(envelope{
		KeyID:      c.active.KeyID,
		Version:    c.active.Version,
		Algorithm:  envelopeAlgorithmManaged,
		Ciphertext: encodeCiphertextPayload(response.Ciphertext),
		Metadata:   copyStringMap(c.metadata),
	})
}

func (c *ManagedKeyCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: payload cipher is nil")
	}
	env, _, err := decodeEnvelope(ciphertext, envelopeDecodeOptions{DefaultAlgorithm: envelopeAlgorithmManaged})
	if err != nil {
		return nil, err
	}
	if env.Algorithm != envelopeAlgorithmManaged {
		return nil, fmt.Errorf("security: unsupported envelope algorithm %q", env.Algorithm)
	}
	ref, err := newManagedKeyRef(env.KeyID, env.Version)
	if err != nil {
		return nil, err
	}
	if !c.allowAnyDecrypt {
		if _, ok := c.decryptAllowed[ref.id()]; !ok {
			return nil, fmt.Errorf("security: managed decrypt key %q version %d is not configured", ref.KeyID, ref.Version)
		}
	}
	if !c.rotationWindowAllows(ref) {
		return nil, fmt.Errorf("security: managed key %q version %d is outside the configured rotation window", ref.KeyID, ref.Version)
	}

	payload, err := decodeCiphertextPayload(env.Ciphertext)
	if err != nil {
		return nil, err
	}
	response, err := c.client.Decrypt(ctx, ManagedDecryptRequest{
		KeyID:      ref.KeyID,
		KeyVersion: ref.Version,
		Ciphertext: payload,
		Metadata:   copyStringMap(env.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("security: managed decrypt: %w", err)
	}
	if len(response.Plaintext) == 0 {
		return nil, fmt.Errorf("security: managed decrypt returned empty plaintext")
	}
	return response.Plaintext, nil
}

func (c *ManagedKeyCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.active.KeyID
}

func (c *ManagedKeyCipher) Version() int {
	if c == nil {
		return 0
	}
	return c.active.Version
}

func (c *ManagedKeyCipher) Metadata() (string, int) {
	return c.KeyID(), c.Version()
}

func (c *ManagedKeyCipher) rotationWindowAllows(ref managedKeyRef) bool {
	if c == nil {
		return false
	}
	window, ok := c.rotationWindows[ref.id()]
	if !ok {
		return true
	}
	now := c.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return window.Allows(now())
}

func newManagedKeyRef(keyID string, version int) (managedKeyRef, error) {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return managedKeyRef{}, fmt.Errorf("security: key id is required")
	}
	if version <= 0 {
		return managedKeyRef{}, fmt.Errorf("security: key version must be greater than zero")
	}
	return managedKeyRef{KeyID: trimmed, Version: version}, nil
}

func copyStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return nil
	}
	output := make(map[string]string, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		output[trimmedKey] = strings.TrimSpace(value)
	}
	if len(output) == 0 {
		return nil
	}
	return output
}

var _ core.PayloadCipher = (*ManagedKeyCipher)(nil)
