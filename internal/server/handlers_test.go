package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"webwrap/internal/build"
)

func doJSON(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func createBuild(t *testing.T, srv *Server, appName, webviewURL string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"appName": appName, "webviewUrl": webviewURL})
	rr := doJSON(t, srv, "POST", "/builds/trigger", payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response.Success || response.Data.ID == "" {
		t.Fatalf("Unexpected trigger response: %s", rr.Body.String())
	}
	if response.Data.Status != "pending" {
		t.Fatalf("Expected pending status, got %s", response.Data.Status)
	}
	return response.Data.ID
}

func TestHandleTriggerBuild(t *testing.T) {
	srv, trig, _ := setupTestServer(t)

	id := createBuild(t, srv, "Test", "example.com")

	if len(trig.events) != 1 {
		t.Fatalf("Expected 1 dispatch event, got %d", len(trig.events))
	}
	if trig.events[0].BuildID != id {
		t.Errorf("Dispatch carried wrong build id: %s", trig.events[0].BuildID)
	}
	if trig.events[0].URL != "https://example.com" {
		t.Errorf("Expected normalized URL, got %s", trig.events[0].URL)
	}
}

func TestHandleTriggerBuild_InvalidContentType(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest("POST", "/builds/trigger", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHandleTriggerBuild_PayloadTooLarge(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest("POST", "/builds/trigger", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = MaxPayloadBytes + 1
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHandleTriggerBuild_InvalidURL(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	payload, _ := json.Marshal(map[string]string{"appName": "Test", "webviewUrl": "not a url"})
	rr := doJSON(t, srv, "POST", "/builds/trigger", payload)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	var response map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["code"] != string(build.EInvalidInput) {
		t.Errorf("Expected code %s, got %v", build.EInvalidInput, response["code"])
	}
}

func TestHandleTriggerBuild_TriggerFailure(t *testing.T) {
	srv, trig, _ := setupTestServer(t)
	trig.fail = true

	payload, _ := json.Marshal(map[string]string{"appName": "Test", "webviewUrl": "example.com"})
	rr := doJSON(t, srv, "POST", "/builds/trigger", payload)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}

	var response map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["code"] != string(build.ETriggerFailed) {
		t.Errorf("Expected code %s, got %v", build.ETriggerFailed, response["code"])
	}

	// The failed record must still be listed.
	rr = doJSON(t, srv, "GET", "/builds", nil)
	var list struct {
		Count int            `json:"count"`
		Data  []build.Record `json:"data"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if list.Count != 1 || list.Data[0].Status != build.StatusFailed {
		t.Errorf("Expected one failed record, got %s", rr.Body.String())
	}
}

func TestHandleGetBuild_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rr := doJSON(t, srv, "GET", "/builds/12345", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestHandleGetBuild_InvalidID(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rr := doJSON(t, srv, "GET", "/builds/bad.id", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHandleGetBuild_Reconciles(t *testing.T) {
	srv, _, artifacts := setupTestServer(t)

	id := createBuild(t, srv, "Test", "test.com")
	placeArtifacts(t, artifacts, id)

	rr := doJSON(t, srv, "GET", "/builds/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response struct {
		Data build.Record `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Data.Status != build.StatusCompleted {
		t.Errorf("Expected completed after reconciliation, got %s", response.Data.Status)
	}
	if response.Data.BuildPath == nil || *response.Data.BuildPath != "builds/"+id {
		t.Errorf("Expected buildPath builds/%s, got %v", id, response.Data.BuildPath)
	}
}

func TestHandleListBuilds_Empty(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rr := doJSON(t, srv, "GET", "/builds", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response struct {
		Success bool           `json:"success"`
		Count   int            `json:"count"`
		Data    []build.Record `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response.Success || response.Count != 0 || response.Data == nil {
		t.Errorf("Expected empty list envelope, got %s", rr.Body.String())
	}
}

func TestHandleDeleteBuild(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	id := createBuild(t, srv, "Test", "example.com")

	rr := doJSON(t, srv, "DELETE", "/builds/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	rr = doJSON(t, srv, "DELETE", "/builds/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", rr.Code)
	}
}

func TestHandleDownload_GuardsAndRedirect(t *testing.T) {
	srv, _, artifacts := setupTestServer(t)

	id := createBuild(t, srv, "Test", "example.com")

	// Pending build: no download.
	rr := doJSON(t, srv, "GET", "/builds/"+id+"/download?type=apk", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 on pending build, got %d", rr.Code)
	}

	// Bad type parameter.
	rr = doJSON(t, srv, "GET", "/builds/"+id+"/download?type=exe", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad type, got %d", rr.Code)
	}

	// Complete the build, then download redirects to a signed URL.
	placeArtifacts(t, artifacts, id)
	rr = doJSON(t, srv, "GET", "/builds/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Reconciling read failed: %d", rr.Code)
	}

	rr = doJSON(t, srv, "GET", "/builds/"+id+"/download?type=apk", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d: %s", rr.Code, rr.Body.String())
	}

	location := rr.Header().Get("Location")
	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("Invalid Location header %q: %v", location, err)
	}

	// The signed URL must resolve against the artifact route.
	req := httptest.NewRequest("GET", u.Path+"?"+u.RawQuery, nil)
	fileRR := httptest.NewRecorder()
	srv.Router().ServeHTTP(fileRR, req)
	if fileRR.Code != http.StatusOK {
		t.Fatalf("Signed URL fetch failed: %d", fileRR.Code)
	}
	if fileRR.Body.String() != "binary" {
		t.Errorf("Unexpected artifact body: %q", fileRR.Body.String())
	}
}

func TestHandleDownload_ArtifactMissing(t *testing.T) {
	srv, _, artifacts := setupTestServer(t)

	id := createBuild(t, srv, "Test", "example.com")
	placeArtifacts(t, artifacts, id)
	if rr := doJSON(t, srv, "GET", "/builds/"+id, nil); rr.Code != http.StatusOK {
		t.Fatalf("Reconciling read failed: %d", rr.Code)
	}

	// Remove the objects out from under the completed record.
	if err := artifacts.DeletePrefix(context.Background(), "builds/"+id); err != nil {
		t.Fatalf("Failed to remove artifacts: %v", err)
	}

	rr := doJSON(t, srv, "GET", "/builds/"+id+"/download?type=apk", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for missing artifact, got %d", rr.Code)
	}

	var response map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["code"] != string(build.EArtifactMissing) {
		t.Errorf("Expected code %s, got %v", build.EArtifactMissing, response["code"])
	}
}

func TestHandleArtifact_RejectsBadSignature(t *testing.T) {
	srv, _, artifacts := setupTestServer(t)

	id := createBuild(t, srv, "Test", "example.com")
	placeArtifacts(t, artifacts, id)

	rr := doJSON(t, srv, "GET", "/artifacts/builds/"+id+"/app.apk?expires=9999999999&sig=bogus", nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestHandleStatusCallback(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	id := createBuild(t, srv, "Test", "example.com")

	payload, _ := json.Marshal(build.StatusUpdate{BuildID: id, Status: build.StatusProcessing})
	req := httptest.NewRequest("POST", "/internal/update-build-status", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, makeTestSignature(payload, testCallbackSecret))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response struct {
		Data build.Record `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Data.Status != build.StatusProcessing {
		t.Errorf("Expected processing, got %s", response.Data.Status)
	}
}

func TestHandleStatusCallback_InvalidSignature(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	id := createBuild(t, srv, "Test", "example.com")

	payload, _ := json.Marshal(build.StatusUpdate{BuildID: id, Status: build.StatusCompleted})
	req := httptest.NewRequest("POST", "/internal/update-build-status", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, makeTestSignature(payload, "wrong-secret-32-chars-long-xxxxxxxx"))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}

	// The unsigned update must not have been applied.
	getRR := doJSON(t, srv, "GET", "/builds/"+id, nil)
	var response struct {
		Data build.Record `json:"data"`
	}
	_ = json.Unmarshal(getRR.Body.Bytes(), &response)
	if response.Data.Status != build.StatusPending {
		t.Errorf("Unsigned callback changed status to %s", response.Data.Status)
	}
}

func TestHandleStatusCallback_MissingSignature(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	payload := []byte(`{"build_id":"x","status":"completed"}`)
	req := httptest.NewRequest("POST", "/internal/update-build-status", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rr := doJSON(t, srv, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", response["status"])
	}
}
