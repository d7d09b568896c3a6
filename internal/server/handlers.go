package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"webwrap/internal/build"
	"webwrap/internal/security"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB
)

// triggerRequest is the body of POST /builds/trigger.
type triggerRequest struct {
	AppName    string `json:"appName"`
	WebviewURL string `json:"webviewUrl"`
}

// HandleTriggerBuild creates a build record and fires the CI pipeline.
func (s *Server) HandleTriggerBuild(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > MaxPayloadBytes {
		s.respondError(w, build.NewError(build.EInvalidInput, "Payload too large"))
		return
	}
	if r.Header.Get("Content-Type") != "application/json" {
		s.respondError(w, build.NewError(build.EInvalidInput, "Content-Type must be application/json"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorBody("Failed to read payload", ""))
		return
	}

	var req triggerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, build.NewError(build.EInvalidInput, "Invalid JSON payload"))
		return
	}

	rec, err := s.Service.CreateBuild(r.Context(), req.AppName, req.WebviewURL)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data": map[string]string{
			"id":     rec.ID,
			"status": string(rec.Status),
		},
	})
}

// HandleListBuilds returns all build records, newest first.
func (s *Server) HandleListBuilds(w http.ResponseWriter, r *http.Request) {
	records, err := s.Service.ListBuilds(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if records == nil {
		records = []build.Record{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(records),
		"data":    records,
	})
}

// HandleGetBuild returns one build record, reconciling stale status against
// artifact presence first.
func (s *Server) HandleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")
	if err := security.ValidateBuildID(id); err != nil {
		s.respondError(w, build.NewError(build.EInvalidInput, fmt.Sprintf("Invalid build id: %v", err)))
		return
	}

	rec, err := s.Service.GetBuild(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    rec,
	})
}

// HandleDeleteBuild removes a record and its artifacts.
func (s *Server) HandleDeleteBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")
	if err := security.ValidateBuildID(id); err != nil {
		s.respondError(w, build.NewError(build.EInvalidInput, fmt.Sprintf("Invalid build id: %v", err)))
		return
	}

	if err := s.Service.DeleteBuild(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HandleDownload redirects to a signed, time-limited artifact URL.
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")
	if err := security.ValidateBuildID(id); err != nil {
		s.respondError(w, build.NewError(build.EInvalidInput, fmt.Sprintf("Invalid build id: %v", err)))
		return
	}

	fileType := r.URL.Query().Get("type")
	if err := security.ValidateFileType(fileType); err != nil {
		s.respondError(w, build.NewError(build.EInvalidInput, err.Error()))
		return
	}

	signedURL, err := s.Service.DownloadArtifact(r.Context(), id, build.FileType(fileType))
	if err != nil {
		s.respondError(w, err)
		return
	}

	http.Redirect(w, r, signedURL, http.StatusFound)
}

// HandleArtifact verifies a signed download link and serves the file.
func (s *Server) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	objectPath := chi.URLParam(r, "*")
	if err := security.ValidateObjectPath(objectPath); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody("Invalid artifact path", ""))
		return
	}

	q := r.URL.Query()
	if err := s.Signer.Verify(objectPath, q.Get("expires"), q.Get("sig")); err != nil {
		s.Logger.Warn("Rejected artifact download", "path", objectPath, "error", err)
		s.respondJSON(w, http.StatusForbidden, errorBody("Invalid or expired download link", ""))
		return
	}

	path, err := s.Artifacts.FilePath(objectPath)
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody("Invalid artifact path", ""))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filenameOf(objectPath)))
	http.ServeFile(w, r, path)
}

// HandleStatusCallback applies a signed status update from the external CI
// pipeline.
func (s *Server) HandleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, errorBody("Payload too large", ""))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("Failed to read callback body", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorBody("Failed to read payload", ""))
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if !VerifySignature(body, signature, s.CallbackSecret) {
		s.respondJSON(w, http.StatusForbidden, errorBody("Invalid signature", ""))
		return
	}

	var upd build.StatusUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		s.respondError(w, build.NewError(build.EInvalidInput, "Invalid JSON payload"))
		return
	}

	rec, err := s.Service.ApplyCallback(r.Context(), upd)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    rec,
	})
}

// HandleHealth handles health check requests.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

// respondError maps build error codes to HTTP statuses. Validation errors
// surface verbatim; infrastructure errors get a generic message so response
// bodies never leak internals.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var berr *build.Error
	if !errors.As(err, &berr) {
		s.Logger.Error("Unhandled error", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorBody("Internal server error", ""))
		return
	}

	switch berr.Code {
	case build.EInvalidInput, build.EInvalidState:
		s.respondJSON(w, http.StatusBadRequest, errorBody(berr.Msg, string(berr.Code)))
	case build.ENotFound, build.EArtifactMissing:
		s.respondJSON(w, http.StatusNotFound, errorBody(berr.Msg, string(berr.Code)))
	case build.ETriggerFailed:
		s.Logger.Error("Build trigger failed", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorBody(berr.Msg, string(berr.Code)))
	default:
		s.Logger.Error("Build operation failed", "code", berr.Code, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorBody("Internal server error", string(berr.Code)))
	}
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

func errorBody(msg, code string) map[string]interface{} {
	body := map[string]interface{}{
		"success": false,
		"error":   msg,
	}
	if code != "" {
		body["code"] = code
	}
	return body
}

func filenameOf(objectPath string) string {
	for i := len(objectPath) - 1; i >= 0; i-- {
		if objectPath[i] == '/' {
			return objectPath[i+1:]
		}
	}
	return objectPath
}
