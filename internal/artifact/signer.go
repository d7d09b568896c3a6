package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer produces and verifies HMAC-signed download URLs. Links are
// stateless: the expiry is baked into the query string and covered by the
// signature, so the server never has to remember issued credentials.
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

// NewSigner creates a signer. baseURL is the externally reachable server
// address, ttl is the validity window of generated links.
func NewSigner(secret, baseURL string, ttl time.Duration) *Signer {
	return &Signer{
		secret:  []byte(secret),
		baseURL: baseURL,
		ttl:     ttl,
	}
}

// Sign returns a download URL for the object, valid for the signer's TTL.
func (s *Signer) Sign(objectPath string) string {
	expires := time.Now().Add(s.ttl).Unix()
	sig := s.signature(objectPath, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)

	return fmt.Sprintf("%s/artifacts/%s?%s", s.baseURL, objectPath, q.Encode())
}

// Verify checks the signature and expiry extracted from a download request.
func (s *Signer) Verify(objectPath, expiresStr, sig string) error {
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry: %w", err)
	}
	if time.Now().Unix() > expires {
		return fmt.Errorf("link expired")
	}

	expected := s.signature(objectPath, expires)
	// Constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func (s *Signer) signature(objectPath string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", objectPath, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
