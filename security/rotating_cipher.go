package security

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-approvals/core"
)

// RotationDiagnostic surfaces which key ultimately served an operation
// during a rotation, so operators can watch old envelopes drain.
type RotationDiagnostic struct {
	OccurredAt time.Time
	Operation  string
	Outcome    string
	Active     string
	Retired    string
	Error      string
}

type RotationDiagnosticHook func(event RotationDiagnostic)

type RotatingOption func(*RotatingPayloadCipher)

type cipherKeyRef struct {
	KeyID   string
	Version int
}

type retiredCipher struct {
	cipher core.PayloadCipher
	window KeyRotationWindow
}

// RotatingPayloadCipher encrypts with the active key and keeps retired
// keys around for decryption only, optionally bounded by a rotation
// window. New rows always carry the active envelope; old rows stay
// readable until their key ages out.
type RotatingPayloadCipher struct {
	active         core.PayloadCipher
	retired        []retiredCipher
	diagnosticHook RotationDiagnosticHook
	now            func() time.Time

	mu            sync.RWMutex
	lastEncrypted cipherKeyRef
}

func NewRotatingPayloadCipher(active core.PayloadCipher, opts ...RotatingOption) (*RotatingPayloadCipher, error) {
	if active == nil {
		return nil, fmt.Errorf("security: active payload cipher is required")
	}
	c := &RotatingPayloadCipher{
		active: active,
		now:    func() time.Time { return time.Now().UTC() },
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
	c.recordMetadata(c.active)
	return c, nil
}

// WithRetiredCipher registers a previous key for decrypt-only use. A
// zero window keeps the key usable indefinitely.
func WithRetiredCipher(cipher core.PayloadCipher, window KeyRotationWindow) RotatingOption {
	return func(c *RotatingPayloadCipher) {
		if c == nil || cipher == nil {
			return
		}
		c.retired = append(c.retired, retiredCipher{cipher: cipher, window: window})
	}
}

func WithRotationDiagnostics(hook RotationDiagnosticHook) RotatingOption {
	return func(c *RotatingPayloadCipher) {
		if c == nil {
			return
		}
		c.diagnosticHook = hook
	}
}

func WithRotationClock(now func() time.Time) RotatingOption {
	return func(c *RotatingPayloadCipher) {
		if c == nil {
			return
		}
		c.now = now
	}
}

func (c *RotatingPayloadCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: payload cipher is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	ciphertext, err := c.active.Encrypt(ctx, plaintext)
	if err != nil {
		c.emit("encrypt", "active_failed", err)
		return nil, fmt.Errorf("security: active key encrypt failed: %w", err)
	}
	c.recordMetadata(c.active)
	return ciphertext, nil
}

func (c *RotatingPayloadCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: payload cipher is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}
	plaintext, err := c.active.Decrypt(ctx, ciphertext)
	if err == nil {
		return plaintext, nil
	}
	c.emit("decrypt", "active_failed", err)

	now := c.now()
	for _, entry := range c.retired {
		if !entry.window.Allows(now) {
			continue
		}
		retiredPlaintext, retiredErr := entry.cipher.Decrypt(ctx, ciphertext)
		if retiredErr != nil {
			continue
		}
		c.emit("decrypt", "retired_succeeded", err)
		return retiredPlaintext, nil
	}
	return nil, fmt.Errorf("security: no configured key decrypts this envelope: %w", err)
}

func (c *RotatingPayloadCipher) Metadata() (string, int) {
	if c == nil {
		return "", 0
	}
	c.mu.RLock()
	last := c.lastEncrypted
	c.mu.RUnlock()
	if strings.TrimSpace(last.KeyID) != "" && last.Version > 0 {
		return last.KeyID, last.Version
	}
	if keyID, version, ok := readCipherMetadata(c.active); ok {
		return keyID, version
	}
	return "", 0
}

func (c *RotatingPayloadCipher) emit(operation string, outcome string, err error) {
	if c == nil || c.diagnosticHook == nil {
		return
	}
	now := c.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	retired := make([]string, 0, len(c.retired))
	for _, entry := range c.retired {
		retired = append(retired, describePayloadCipher(entry.cipher))
	}
	c.diagnosticHook(RotationDiagnostic{
		OccurredAt: now().UTC(),
		Operation:  operation,
		Outcome:    outcome,
		Active:     describePayloadCipher(c.active),
		Retired:    strings.Join(retired, ","),
		Error:      msg,
	})
}

func (c *RotatingPayloadCipher) recordMetadata(cipher core.PayloadCipher) {
	if c == nil {
		return
	}
	keyID, version, ok := readCipherMetadata(cipher)
	if !ok {
		return
	}
	c.mu.Lock()
	c.lastEncrypted = cipherKeyRef{KeyID: keyID, Version: version}
	c.mu.Unlock()
}

func readCipherMetadata(cipher core.PayloadCipher) (string, int, bool) {
	if cipher == nil {
		return "", 0, false
	}
	metadataProvider, ok := cipher.(interface{ Metadata() (string, int) })
	if !ok {
		return "", 0, false
	}
	keyID, version := metadataProvider.Metadata()
	keyID = strings.TrimSpace(keyID)
	if keyID == "" || version <= 0 {
		return "", 0, false
	}
	return keyID, version, true
}

func describePayloadCipher(cipher core.PayloadCipher) string {
	if cipher == nil {
		return ""
	}
	label := reflect.TypeOf(cipher).String()
	if keyID, version, ok := readCipherMetadata(cipher); ok {
		return fmt.Sprintf("%s(%s:%d)", label, keyID, version)
	}
	return label
}

var _ core.PayloadCipher = (*RotatingPayloadCipher)(nil)
