// Package artifact stores and serves the binaries produced by completed
// builds. Objects live under a build-scoped prefix, builds/{id}/app.apk and
// builds/{id}/app.aab, and are read through time-limited signed URLs.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"webwrap/internal/security"
)

// FS implements the artifact store on the local filesystem.
type FS struct {
	BaseDir string
	signer  *Signer
}

// NewFS creates a filesystem artifact store rooted at baseDir. The signer
// is used for generating and verifying download URLs.
func NewFS(baseDir string, signer *Signer) *FS {
	return &FS{BaseDir: baseDir, signer: signer}
}

// FilePath resolves an object path to an absolute filesystem path,
// rejecting traversal attempts.
func (s *FS) FilePath(objectPath string) (string, error) {
	if err := security.ValidateObjectPath(objectPath); err != nil {
		return "", fmt.Errorf("invalid object path: %w", err)
	}
	return filepath.Join(s.BaseDir, filepath.FromSlash(objectPath)), nil
}

// Exists reports whether the object is present.
func (s *FS) Exists(ctx context.Context, objectPath string) (bool, error) {
	path, err := s.FilePath(objectPath)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}
	return !info.IsDir(), nil
}

// ModTime returns the object's last modification time.
func (s *FS) ModTime(ctx context.Context, objectPath string) (time.Time, error) {
	path, err := s.FilePath(objectPath)
	if err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}
	return info.ModTime(), nil
}

// Save writes the object from the provided reader, creating parent
// directories as needed. Returns the number of bytes written.
func (s *FS) Save(ctx context.Context, objectPath string, r io.Reader) (int64, error) {
	path, err := s.FilePath(objectPath)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create artifact file %s: %w", objectPath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, r)
	if err != nil {
		return n, fmt.Errorf("failed to write artifact file %s: %w", objectPath, err)
	}
	return n, nil
}

// DeletePrefix removes every object under the given prefix. Removing a
// prefix that does not exist is a no-op.
func (s *FS) DeletePrefix(ctx context.Context, prefix string) error {
	path, err := s.FilePath(prefix)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete artifacts under %s: %w", prefix, err)
	}
	return nil
}

// SignedURL returns a time-limited download link for the object.
func (s *FS) SignedURL(objectPath string) (string, error) {
	if err := security.ValidateObjectPath(objectPath); err != nil {
		return "", fmt.Errorf("invalid object path: %w", err)
	}
	return s.signer.Sign(objectPath), nil
}
