package artifactsync

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"

	"webwrap/internal/artifact"
	"webwrap/internal/build"
)

type fakeBuildSource struct {
	records []build.Record
	err     error
}

func (f *fakeBuildSource) List(ctx context.Context) ([]build.Record, error) {
	return f.records, f.err
}

// buildArtifactZip produces an Actions-style artifact zip holding an apk
// and an aab entry.
func buildArtifactZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"app-release.apk": "apk-bytes",
		"app-release.aab": "aab-bytes",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

type syncerEnv struct {
	syncer   *Syncer
	builds   *fakeBuildSource
	store    *artifact.FS
	apiCalls *atomic.Int64
}

// setupSyncer wires a syncer against a fake GitHub API that serves one
// artifact named buildID.
func setupSyncer(t *testing.T, buildID string, listArtifacts string) *syncerEnv {
	t.Helper()

	zipBytes := buildArtifactZip(t)
	calls := &atomic.Int64{}

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/repos/tecxmate/app-builder/actions/artifacts", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, listArtifacts)
	})
	mux.HandleFunc("/repos/tecxmate/app-builder/actions/artifacts/101/zip", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/blob/101", http.StatusFound)
	})
	mux.HandleFunc("/blob/101", func(w http.ResponseWriter, r *http.Request) {
		w.Write(zipBytes)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	gh.BaseURL = base

	signer := artifact.NewSigner(strings.Repeat("s", 32), "http://127.0.0.1:5000", time.Minute)
	store := artifact.NewFS(filepath.Join(t.TempDir(), "artifacts"), signer)
	builds := &fakeBuildSource{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &syncerEnv{
		syncer:   New(gh, "tecxmate", "app-builder", builds, store, logger),
		builds:   builds,
		store:    store,
		apiCalls: calls,
	}
}

func artifactListJSON(buildID string, expired bool) string {
	return fmt.Sprintf(`{"total_count":1,"artifacts":[{"id":101,"name":%q,"expired":%t}]}`, buildID, expired)
}

func readArtifact(t *testing.T, store *artifact.FS, objectPath string) string {
	t.Helper()
	p, err := store.FilePath(objectPath)
	if err != nil {
		t.Fatalf("Failed to resolve artifact path: %v", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("Failed to read artifact: %v", err)
	}
	return string(data)
}

func TestSyncBuild_DownloadsAndExtracts(t *testing.T) {
	const id = "1712000000000"
	env := setupSyncer(t, id, artifactListJSON(id, false))

	if err := env.syncer.SyncBuild(context.Background(), id); err != nil {
		t.Fatalf("SyncBuild() error = %v", err)
	}

	if got := readArtifact(t, env.store, build.ArtifactPath(id, build.FileAPK)); got != "apk-bytes" {
		t.Errorf("Unexpected apk content: %q", got)
	}
	if got := readArtifact(t, env.store, build.ArtifactPath(id, build.FileAAB)); got != "aab-bytes" {
		t.Errorf("Unexpected aab content: %q", got)
	}
}

func TestSyncBuild_MatchesArtifactByName(t *testing.T) {
	const id = "1712000000000"
	// The listing carries other builds' artifacts too; only the one named
	// after this build may be fetched.
	listing := fmt.Sprintf(`{"total_count":3,"artifacts":[
		{"id":99,"name":"1711999999999","expired":false},
		{"id":100,"name":%q,"expired":true},
		{"id":101,"name":%q,"expired":false}
	]}`, id, id)
	env := setupSyncer(t, id, listing)

	if err := env.syncer.SyncBuild(context.Background(), id); err != nil {
		t.Fatalf("SyncBuild() error = %v", err)
	}

	if got := readArtifact(t, env.store, build.ArtifactPath(id, build.FileAPK)); got != "apk-bytes" {
		t.Errorf("Unexpected apk content: %q", got)
	}
}

func TestSyncBuild_NoArtifactYet(t *testing.T) {
	const id = "1712000000000"
	env := setupSyncer(t, id, `{"total_count":0,"artifacts":[]}`)

	if err := env.syncer.SyncBuild(context.Background(), id); err != nil {
		t.Fatalf("Expected missing artifact to be treated as not-ready, got %v", err)
	}

	if ok, _ := env.store.Exists(context.Background(), build.ArtifactPath(id, build.FileAPK)); ok {
		t.Error("No artifact should have been written")
	}
}

func TestSyncBuild_IgnoresExpiredArtifact(t *testing.T) {
	const id = "1712000000000"
	env := setupSyncer(t, id, artifactListJSON(id, true))

	if err := env.syncer.SyncBuild(context.Background(), id); err != nil {
		t.Fatalf("Expected expired artifact to be skipped, got %v", err)
	}

	if ok, _ := env.store.Exists(context.Background(), build.ArtifactPath(id, build.FileAPK)); ok {
		t.Error("Expired artifact should not have been downloaded")
	}
}

func TestSyncBuild_SkipsFreshArtifacts(t *testing.T) {
	const id = "1712000000000"
	env := setupSyncer(t, id, artifactListJSON(id, false))

	// Pre-populate both objects; the syncer must not touch the API.
	for _, ft := range []build.FileType{build.FileAPK, build.FileAAB} {
		if _, err := env.store.Save(context.Background(), build.ArtifactPath(id, ft), strings.NewReader("existing")); err != nil {
			t.Fatalf("Failed to seed artifact: %v", err)
		}
	}

	if err := env.syncer.SyncBuild(context.Background(), id); err != nil {
		t.Fatalf("SyncBuild() error = %v", err)
	}

	if env.apiCalls.Load() != 0 {
		t.Errorf("Expected no API calls for fresh artifacts, got %d", env.apiCalls.Load())
	}
	if got := readArtifact(t, env.store, build.ArtifactPath(id, build.FileAPK)); got != "existing" {
		t.Errorf("Fresh artifact was overwritten: %q", got)
	}
}

func TestSyncOnce_SkipsTerminalBuilds(t *testing.T) {
	const id = "1712000000000"
	env := setupSyncer(t, id, artifactListJSON(id, false))
	env.builds.records = []build.Record{
		{ID: "done-1", Status: build.StatusCompleted},
		{ID: "done-2", Status: build.StatusFailed},
	}

	if err := env.syncer.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}
	if env.apiCalls.Load() != 0 {
		t.Errorf("Expected terminal builds to be skipped, got %d API calls", env.apiCalls.Load())
	}
}

func TestSyncOnce_ProcessesPendingBuilds(t *testing.T) {
	const id = "1712000000000"
	env := setupSyncer(t, id, artifactListJSON(id, false))
	env.builds.records = []build.Record{
		{ID: id, Status: build.StatusPending},
	}

	if err := env.syncer.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}

	if ok, _ := env.store.Exists(context.Background(), build.ArtifactPath(id, build.FileAPK)); !ok {
		t.Error("Expected pending build's artifacts to be synced")
	}
}

func TestSyncOnce_ListError(t *testing.T) {
	const id = "1712000000000"
	env := setupSyncer(t, id, artifactListJSON(id, false))
	env.builds.err = fmt.Errorf("database locked")

	if err := env.syncer.SyncOnce(context.Background()); err == nil {
		t.Fatal("Expected list error to surface")
	}
}
