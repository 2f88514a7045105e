package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-approvals/core"
)

const (
	DefaultSignatureHeader = "X-Signature"
	DefaultTimestampHeader = "X-Signature-Timestamp"

	signatureVersion = "v0"
)

// Verification failures fall into three classes the ingress answers
// differently: server misconfiguration, malformed request, and
// authentication failure.
var (
	ErrMissingSigningSecret = errors.New("webhooks: signing secret is not configured")
	ErrMissingHeader        = errors.New("webhooks: required header is missing")
	ErrMalformedTimestamp   = errors.New("webhooks: request timestamp is malformed")
	ErrTimestampExpired     = errors.New("webhooks: request timestamp outside tolerance")
	ErrSignatureMismatch    = errors.New("webhooks: request signature mismatch")
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// SignatureVerifier checks the platform's v0 request signature:
// hex(HMAC-SHA256(secret, "v0:<timestamp>:<body>")) with a "v0="
// prefix. The timestamp must fall within Window of the verifier clock
// in either direction.
type SignatureVerifier struct {
	Secret          string
	Window          time.Duration
	SignatureHeader string
	TimestampHeader string
	Now             func() time.Time
}

var _ Verifier = SignatureVerifier{}

func (v SignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return ErrMissingSigningSecret
	}

	timestampHeader := v.TimestampHeader
	if strings.TrimSpace(timestampHeader) == "" {
		timestampHeader = DefaultTimestampHeader
	}
	signatureHeader := v.SignatureHeader
	if strings.TrimSpace(signatureHeader) == "" {
		signatureHeader = DefaultSignatureHeader
	}

	rawTimestamp := strings.TrimSpace(headerValue(req.Headers, timestampHeader))
	if rawTimestamp == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, timestampHeader)
	}
	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return ErrMalformedTimestamp
	}

	window := v.Window
	if window <= 0 {
		window = core.DefaultSignatureWindow
	}
	now := v.now()
	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > window {
		return ErrTimestampExpired
	}

	signature := strings.TrimSpace(headerValue(req.Headers, signatureHeader))
	if signature == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, signatureHeader)
	}
	signature = strings.TrimPrefix(signature, signatureVersion+"=")
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: not hex encoded", ErrSignatureMismatch)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%s:%s:", signatureVersion, rawTimestamp)
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign produces the v0 signature for a body and timestamp. Used by
// tests and by outbound callbacks that mirror the inbound scheme.
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	_, _ = fmt.Fprintf(mac, "%s:%d:", signatureVersion, timestamp)
	_, _ = mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

func (v SignatureVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
