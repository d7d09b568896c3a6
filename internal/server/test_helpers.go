package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webwrap/internal/artifact"
	"webwrap/internal/build"
	"webwrap/internal/store"
)

const (
	testCallbackSecret = "test-callback-secret-32-chars-long-x"
	testSigningSecret  = "test-signing-secret-32-chars-long-xx"
)

// fakeTrigger records dispatch events and can be told to fail.
type fakeTrigger struct {
	fail   bool
	events []build.DispatchEvent
}

func (f *fakeTrigger) Dispatch(ctx context.Context, ev build.DispatchEvent) error {
	if f.fail {
		return errors.New("github unreachable")
	}
	f.events = append(f.events, ev)
	return nil
}

// setupTestServer builds a full server around temp-dir storage and a fake
// CI trigger.
func setupTestServer(t *testing.T) (*Server, *fakeTrigger, *artifact.FS) {
	t.Helper()
	tmp := t.TempDir()

	st, err := store.New(filepath.Join(tmp, "builds.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	signer := artifact.NewSigner(testSigningSecret, "http://127.0.0.1:5000", 15*time.Minute)
	artifacts := artifact.NewFS(filepath.Join(tmp, "artifacts"), signer)
	trig := &fakeTrigger{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := build.NewService(st, artifacts, trig, logger)
	srv := NewServer(svc, artifacts, signer, testCallbackSecret, logger, true)

	return srv, trig, artifacts
}

// placeArtifacts writes both expected objects for a build.
func placeArtifacts(t *testing.T, artifacts *artifact.FS, id string) {
	t.Helper()
	for _, ft := range []build.FileType{build.FileAPK, build.FileAAB} {
		if _, err := artifacts.Save(context.Background(), build.ArtifactPath(id, ft), strings.NewReader("binary")); err != nil {
			t.Fatalf("Failed to place artifact: %v", err)
		}
	}
}

// makeTestSignature generates the callback signature header value.
func makeTestSignature(payload []byte, secret string) string {
	return SignPayload(payload, secret)
}
