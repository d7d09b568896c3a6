package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader carries the HMAC of the CI callback body.
	SignatureHeader = "X-Webwrap-Signature-256"

	SignaturePrefix = "sha256="
)

// SignPayload computes the signature header value for a callback payload.
// The CI pipeline uses the same construction on its side.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies the HMAC-SHA256 signature of a CI callback.
func VerifySignature(payload []byte, signature, secret string) bool {
	// Signature must be present
	if signature == "" {
		return false
	}

	// Signature format: "sha256=<hex_digest>"
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}

	expected := SignPayload(payload, secret)

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(expected), []byte(signature))
}
