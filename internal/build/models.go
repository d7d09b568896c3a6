package build

import "time"

// Status is the lifecycle state of a build record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. Terminal records are never
// transitioned again by reconciliation or callbacks.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FileType identifies one of the two artifacts a completed build produces.
type FileType string

const (
	FileAPK FileType = "apk"
	FileAAB FileType = "aab"
)

// Valid reports whether t names a known artifact type.
func (t FileType) Valid() bool {
	return t == FileAPK || t == FileAAB
}

// Record is one requested website-to-app conversion job.
//
// Field presence follows the status:
//   - CompletedAt is set exactly when the record is terminal
//   - APKURL/AABURL/BuildPath are set exactly when status is completed
//   - ErrorMessage is set only when status is failed
type Record struct {
	ID           string     `json:"id"`
	AppName      string     `json:"appName"`
	WebviewURL   string     `json:"webviewUrl"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	APKURL       *string    `json:"apkUrl,omitempty"`
	AABURL       *string    `json:"aabUrl,omitempty"`
	BuildPath    *string    `json:"buildPath,omitempty"`
	ErrorMessage *string    `json:"error,omitempty"`
}

// DispatchEvent is the payload delivered to the external CI system when a
// build is created.
type DispatchEvent struct {
	BuildID string `json:"build_id"`
	AppName string `json:"app_name"`
	URL     string `json:"url"`
}

// StatusUpdate is the payload of the CI callback endpoint. The external
// pipeline posts one of these when a build is accepted, completes or fails.
type StatusUpdate struct {
	BuildID     string `json:"build_id"`
	Status      Status `json:"status"`
	ArtifactURL string `json:"artifact_url,omitempty"`
	Error       string `json:"error,omitempty"`
}
