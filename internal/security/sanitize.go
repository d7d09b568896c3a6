package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	buildIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	objectPathPattern = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
)

// ValidateBuildID ensures a build identifier is safe for use in paths and
// URLs.
func ValidateBuildID(id string) error {
	if id == "" {
		return fmt.Errorf("build id cannot be empty")
	}
	if strings.HasPrefix(id, "-") || strings.HasPrefix(id, ".") {
		return fmt.Errorf("build id cannot start with '-' or '.'")
	}
	if !buildIDPattern.MatchString(id) {
		return fmt.Errorf("build id contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}

// ValidateObjectPath ensures an artifact object path is safe to join onto
// the store's base directory. Prevents path traversal.
func ValidateObjectPath(path string) error {
	if path == "" {
		return fmt.Errorf("object path cannot be empty")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("object path must be relative")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("object path contains traversal elements: %s", path)
	}
	if !objectPathPattern.MatchString(path) {
		return fmt.Errorf("object path contains invalid characters")
	}
	return nil
}

// ValidateFileType ensures a requested artifact type is one of the known
// values.
func ValidateFileType(t string) error {
	if t != "apk" && t != "aab" {
		return fmt.Errorf("file type must be 'apk' or 'aab', got %q", t)
	}
	return nil
}
