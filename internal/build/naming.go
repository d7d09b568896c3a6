package build

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// NormalizeWebviewURL validates a user-supplied website URL, prepending
// https:// when no scheme is present. Returns the normalized absolute URL.
func NormalizeWebviewURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("webviewUrl is required")
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" || strings.ContainsAny(u.Host, " \t") {
		return "", fmt.Errorf("invalid URL %q: missing or malformed host", raw)
	}

	return u.String(), nil
}

// DeriveAppName builds a display name from a normalized URL's hostname:
// "https://www.my-cool-site.com" becomes "My Cool Site". Returns "" if no
// name can be derived.
func DeriveAppName(normalizedURL string) string {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return ""
	}

	parts := strings.Split(label, "-")
	for i, p := range parts {
		parts[i] = titleCase(p)
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// newBuildID generates a time-based build identifier. IDs sort by creation
// order, which keeps artifact prefixes and listings readable.
func newBuildID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// retryBuildID generates a replacement id after a collision. The random
// suffix guarantees uniqueness even when two creates land in the same
// millisecond.
func retryBuildID() string {
	return fmt.Sprintf("%s-%s", newBuildID(), uuid.NewString()[:8])
}
