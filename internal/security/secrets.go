package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

// MinEntropy is the minimum Shannon entropy threshold for signing and
// callback secrets.
const MinEntropy = 2.5

// GenerateSecret creates a cryptographically secure random secret.
// Returns a 48-character base64-encoded string.
func GenerateSecret() (string, error) {
	// 36 bytes encode to 48 characters in base64
	bytes := make([]byte, 36)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// IsWeakSecret performs a quick check if a secret is obviously weak.
// Used to reject secrets that pass the length check but carry almost no
// randomness.
func IsWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}

	// All same character
	if len(strings.Trim(secret, string(secret[0]))) == 0 {
		return true
	}

	// Sequential characters (e.g., "12345678...")
	if isSequential(secret) {
		return true
	}

	return calculateEntropy(secret) < MinEntropy
}

// calculateEntropy computes the Shannon entropy of a string. Higher entropy
// indicates more randomness.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// isSequential checks if a string consists mostly of sequential characters.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	return float64(sequential) > float64(len(s))*0.7
}
