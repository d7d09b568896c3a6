package build

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultSignedURLTTL bounds how long a generated download link stays
	// valid. Configuration may override it.
	DefaultSignedURLTTL = 15 * time.Minute

	// Artifact object names under a build's prefix.
	APKObjectName = "app.apk"
	AABObjectName = "app.aab"
)

// now returns the current time at the precision records are persisted
// with. Timestamps are stored as RFC3339 text, so anything finer than a
// second would be lost on the first write and break read-back equality.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Store is the durable build record collection.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
}

// ArtifactStore holds the produced binaries for completed builds.
type ArtifactStore interface {
	Exists(ctx context.Context, objectPath string) (bool, error)
	DeletePrefix(ctx context.Context, prefix string) error
	SignedURL(objectPath string) (string, error)
}

// Trigger delivers one build request event to the external CI system.
type Trigger interface {
	Dispatch(ctx context.Context, ev DispatchEvent) error
}

// BuildPrefix returns the artifact store prefix for a build.
func BuildPrefix(id string) string {
	return "builds/" + id
}

// ArtifactPath returns the conventional object path of one artifact.
func ArtifactPath(id string, t FileType) string {
	name := APKObjectName
	if t == FileAAB {
		name = AABObjectName
	}
	return BuildPrefix(id) + "/" + name
}

// DownloadPath returns the stable API path for downloading one artifact.
// Records store this rather than signed URLs so they never hold expiring
// credentials.
func DownloadPath(id string, t FileType) string {
	return fmt.Sprintf("/builds/%s/download?type=%s", id, t)
}

// Service owns build record creation, status transitions and artifact
// bookkeeping. It is the only component that writes to the record store.
type Service struct {
	store     Store
	artifacts ArtifactStore
	trigger   Trigger
	logger    *slog.Logger
}

// NewService creates a build lifecycle service.
func NewService(store Store, artifacts ArtifactStore, trigger Trigger, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		artifacts: artifacts,
		trigger:   trigger,
		logger:    logger,
	}
}

// CreateBuild validates the request, writes a pending record and fires the
// CI trigger. It never blocks on CI completion. If the trigger fails the
// record is transitioned to failed and the failure is returned.
func (s *Service) CreateBuild(ctx context.Context, appName, webviewURL string) (*Record, error) {
	normalized, err := NormalizeWebviewURL(webviewURL)
	if err != nil {
		return nil, WrapError(EInvalidInput, "invalid webviewUrl", err)
	}

	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = DeriveAppName(normalized)
	}
	if appName == "" {
		return nil, NewError(EInvalidInput, "appName is required")
	}

	rec := &Record{
		ID:         newBuildID(),
		AppName:    appName,
		WebviewURL: normalized,
		Status:     StatusPending,
		CreatedAt:  now(),
	}

	if err := s.store.Create(ctx, rec); err != nil {
		if !IsCode(err, EIDCollision) {
			return nil, err
		}
		// One retry with a random suffix, then give up.
		rec.ID = retryBuildID()
		if err := s.store.Create(ctx, rec); err != nil {
			return nil, err
		}
	}

	s.logger.Info("build created", "build_id", rec.ID, "app_name", rec.AppName, "url", rec.WebviewURL)

	if err := s.trigger.Dispatch(ctx, DispatchEvent{
		BuildID: rec.ID,
		AppName: rec.AppName,
		URL:     rec.WebviewURL,
	}); err != nil {
		s.logger.Error("build trigger failed", "build_id", rec.ID, "error", err)
		s.markFailed(ctx, rec, "Failed to trigger build workflow")
		return rec, WrapError(ETriggerFailed, "Failed to trigger build workflow", err)
	}

	return rec, nil
}

// markFailed transitions a record to failed. A store failure here is logged
// only; the caller already has a primary error to report.
func (s *Service) markFailed(ctx context.Context, rec *Record, msg string) {
	completed := now()
	rec.Status = StatusFailed
	rec.CompletedAt = &completed
	rec.ErrorMessage = &msg
	if err := s.store.Update(ctx, rec); err != nil {
		s.logger.Error("failed to record build failure", "build_id", rec.ID, "error", err)
	}
}

// GetBuild returns one record, reconciling a stale non-terminal status
// against artifact presence first. Reconciliation is idempotent and never
// downgrades a terminal record.
func (s *Service) GetBuild(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}
	return s.reconcile(ctx, rec)
}

// reconcile upgrades a non-terminal record to completed when both expected
// artifacts are present under the conventional prefix. Artifact store
// failures degrade to returning the record unchanged.
func (s *Service) reconcile(ctx context.Context, rec *Record) (*Record, error) {
	apkOK, err := s.artifacts.Exists(ctx, ArtifactPath(rec.ID, FileAPK))
	if err != nil {
		s.logger.Warn("artifact check failed, skipping reconciliation", "build_id", rec.ID, "error", err)
		return rec, nil
	}
	aabOK, err := s.artifacts.Exists(ctx, ArtifactPath(rec.ID, FileAAB))
	if err != nil {
		s.logger.Warn("artifact check failed, skipping reconciliation", "build_id", rec.ID, "error", err)
		return rec, nil
	}
	if !apkOK || !aabOK {
		return rec, nil
	}

	completed := now()
	apkURL := DownloadPath(rec.ID, FileAPK)
	aabURL := DownloadPath(rec.ID, FileAAB)
	buildPath := BuildPrefix(rec.ID)

	rec.Status = StatusCompleted
	rec.CompletedAt = &completed
	rec.APKURL = &apkURL
	rec.AABURL = &aabURL
	rec.BuildPath = &buildPath
	rec.ErrorMessage = nil

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("build reconciled to completed", "build_id", rec.ID, "build_path", buildPath)
	return rec, nil
}

// ListBuilds returns all records newest first. Listing is a pure read with
// no transition side effects.
func (s *Service) ListBuilds(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// DeleteBuild removes a record and, best effort, its artifacts. Artifact
// deletion failure is logged but never blocks record removal.
func (s *Service) DeleteBuild(ctx context.Context, id string) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	prefix := BuildPrefix(rec.ID)
	if rec.BuildPath != nil {
		prefix = *rec.BuildPath
	}
	if err := s.artifacts.DeletePrefix(ctx, prefix); err != nil {
		s.logger.Warn("artifact cleanup failed, deleting record anyway", "build_id", id, "prefix", prefix, "error", err)
	}

	return s.store.Delete(ctx, id)
}

// DownloadArtifact returns a time-limited signed URL for one artifact of a
// completed build.
func (s *Service) DownloadArtifact(ctx context.Context, id string, t FileType) (string, error) {
	if !t.Valid() {
		return "", NewError(EInvalidInput, fmt.Sprintf("unknown file type %q, expected apk or aab", t))
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Status != StatusCompleted {
		return "", NewError(EInvalidState, "Build is not completed yet")
	}

	objectPath := ArtifactPath(rec.ID, t)
	ok, err := s.artifacts.Exists(ctx, objectPath)
	if err != nil {
		return "", WrapError(EStoreUnavailable, "artifact store unreachable", err)
	}
	if !ok {
		// Record says completed but the object is gone. Surface the
		// disagreement rather than hand out a broken URL.
		return "", NewError(EArtifactMissing, fmt.Sprintf("artifact %s not found", objectPath))
	}

	return s.artifacts.SignedURL(objectPath)
}

// ApplyCallback applies a status update from the external CI pipeline.
// Terminal records are never downgraded; reapplying the same terminal
// status is a no-op.
func (s *Service) ApplyCallback(ctx context.Context, upd StatusUpdate) (*Record, error) {
	if upd.BuildID == "" {
		return nil, NewError(EInvalidInput, "build_id is required")
	}
	if !upd.Status.Valid() {
		return nil, NewError(EInvalidInput, fmt.Sprintf("unknown status %q", upd.Status))
	}

	rec, err := s.store.Get(ctx, upd.BuildID)
	if err != nil {
		return nil, err
	}

	if rec.Status.Terminal() {
		if rec.Status == upd.Status {
			return rec, nil
		}
		return nil, NewError(EInvalidState, fmt.Sprintf("build already %s", rec.Status))
	}

	switch upd.Status {
	case StatusProcessing:
		rec.Status = StatusProcessing
	case StatusPending:
		// Nothing to do, but not an error: CI may echo the initial state.
		return rec, nil
	case StatusCompleted:
		completed := now()
		apkURL := DownloadPath(rec.ID, FileAPK)
		aabURL := DownloadPath(rec.ID, FileAAB)
		if upd.ArtifactURL != "" {
			apkURL = upd.ArtifactURL
		}
		buildPath := BuildPrefix(rec.ID)
		rec.Status = StatusCompleted
		rec.CompletedAt = &completed
		rec.APKURL = &apkURL
		rec.AABURL = &aabURL
		rec.BuildPath = &buildPath
		rec.ErrorMessage = nil
	case StatusFailed:
		completed := now()
		msg := upd.Error
		if msg == "" {
			msg = "Build failed"
		}
		rec.Status = StatusFailed
		rec.CompletedAt = &completed
		rec.ErrorMessage = &msg
	}

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("build status updated via callback", "build_id", rec.ID, "status", rec.Status)
	return rec, nil
}
