// Package artifactsync pulls finished workflow artifacts out of GitHub
// Actions and into the local artifact store.
//
// The CI pipeline uploads one artifact zip per build, named after the build
// id and containing the APK and AAB. The syncer runs as a background job:
// it never sits on the request path, and GetBuild's reconciliation picks up
// the extracted files on the next poll.
package artifactsync

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"webwrap/internal/artifact"
	"webwrap/internal/build"
	"webwrap/internal/locking"

	"github.com/google/go-github/v57/github"
)

const (
	// FreshnessWindow skips re-downloading artifacts extracted less than
	// this long ago.
	FreshnessWindow = time.Hour

	// DownloadTimeout bounds one artifact zip download.
	DownloadTimeout = 5 * time.Minute

	downloadMaxRedirects = 3
)

// BuildSource lists the build records to consider for syncing.
type BuildSource interface {
	List(ctx context.Context) ([]build.Record, error)
}

// Syncer copies Actions artifacts into the artifact store.
type Syncer struct {
	gh        *github.Client
	owner     string
	repo      string
	builds    BuildSource
	artifacts *artifact.FS
	locks     *locking.Manager
	logger    *slog.Logger
	client    *http.Client
}

// New creates a syncer.
func New(gh *github.Client, owner, repo string, builds BuildSource, artifacts *artifact.FS, logger *slog.Logger) *Syncer {
	return &Syncer{
		gh:        gh,
		owner:     owner,
		repo:      repo,
		builds:    builds,
		artifacts: artifacts,
		locks:     locking.NewManager(),
		logger:    logger,
		client: &http.Client{
			Timeout: DownloadTimeout,
		},
	}
}

// Run syncs on a fixed interval until the context is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.SyncOnce(ctx); err != nil {
			s.logger.Error("artifact sync pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce makes one pass over all non-terminal builds. Per-build TryLock
// keeps a slow download from being doubled up by the next pass.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	records, err := s.builds.List(ctx)
	if err != nil {
		return fmt.Errorf("listing builds: %w", err)
	}

	for _, rec := range records {
		if rec.Status.Terminal() {
			continue
		}
		if !s.locks.TryLock(rec.ID) {
			continue
		}
		err := s.SyncBuild(ctx, rec.ID)
		s.locks.Unlock(rec.ID)
		if err != nil {
			s.logger.Warn("artifact sync failed", "build_id", rec.ID, "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return nil
}

// SyncBuild fetches and extracts the artifact zip for one build. A build
// whose CI run has not finished yet is silently skipped.
func (s *Syncer) SyncBuild(ctx context.Context, buildID string) error {
	if s.fresh(ctx, buildID) {
		return nil
	}

	list, _, err := s.gh.Actions.ListArtifacts(ctx, s.owner, s.repo, &github.ListOptions{PerPage: 100})
	if err != nil {
		return fmt.Errorf("listing workflow artifacts: %w", err)
	}

	// The API has no name filter; match the build's artifact here.
	var found *github.Artifact
	for _, a := range list.Artifacts {
		if a.GetName() == buildID && !a.GetExpired() {
			found = a
			break
		}
	}
	if found == nil {
		// CI has not produced the artifact yet
		return nil
	}

	zipURL, _, err := s.gh.Actions.DownloadArtifact(ctx, s.owner, s.repo, found.GetID(), downloadMaxRedirects)
	if err != nil {
		return fmt.Errorf("resolving artifact download URL: %w", err)
	}

	tmp, err := s.downloadZip(ctx, zipURL.String())
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	extracted, err := s.extract(ctx, buildID, tmp)
	if err != nil {
		return err
	}

	s.logger.Info("artifacts synced", "build_id", buildID, "files", extracted)
	return nil
}

// fresh reports whether both artifacts already exist and were written less
// than FreshnessWindow ago.
func (s *Syncer) fresh(ctx context.Context, buildID string) bool {
	for _, t := range []build.FileType{build.FileAPK, build.FileAAB} {
		mod, err := s.artifacts.ModTime(ctx, build.ArtifactPath(buildID, t))
		if err != nil || time.Since(mod) > FreshnessWindow {
			return false
		}
	}
	return true
}

// downloadZip streams the artifact zip to a temp file and returns its path.
// The caller removes the file.
func (s *Syncer) downloadZip(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artifact zip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code downloading artifact zip: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "webwrap-artifact-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write artifact zip: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close artifact zip: %w", closeErr)
	}

	return tmp.Name(), nil
}

// extract pulls the .apk and .aab entries out of the zip into the artifact
// store under the build's prefix.
func (s *Syncer) extract(ctx context.Context, buildID, zipPath string) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact zip: %w", err)
	}
	defer zr.Close()

	var extracted []string
	for _, f := range zr.File {
		var target string
		switch path.Ext(f.Name) {
		case ".apk":
			target = build.ArtifactPath(buildID, build.FileAPK)
		case ".aab":
			target = build.ArtifactPath(buildID, build.FileAAB)
		default:
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return extracted, fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}
		_, saveErr := s.artifacts.Save(ctx, target, rc)
		rc.Close()
		if saveErr != nil {
			return extracted, saveErr
		}
		extracted = append(extracted, target)
	}

	if len(extracted) == 0 {
		return nil, fmt.Errorf("artifact zip for build %s contains no apk or aab", buildID)
	}

	return extracted, nil
}
