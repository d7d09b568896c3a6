// Package client is a Go client for the webwrap build API, including the
// polling loop the dashboard uses to follow a build to completion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultPollInterval is how often Watch re-reads a build's status.
	DefaultPollInterval = 5 * time.Second

	// DefaultFallbackAfter is the number of consecutive request failures
	// before a demo-mode client substitutes a synthetic record.
	DefaultFallbackAfter = 3

	// DemoBuildID always resolves to the synthetic demo record when demo
	// fallback is enabled.
	DemoBuildID = "demo-build"
)

// Build mirrors the API's build record representation. Synthetic marks
// records fabricated client-side in demo fallback; it is never sent by the
// server and must never be treated as real data.
type Build struct {
	ID           string     `json:"id"`
	AppName      string     `json:"appName"`
	WebviewURL   string     `json:"webviewUrl"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	APKURL       *string    `json:"apkUrl,omitempty"`
	AABURL       *string    `json:"aabUrl,omitempty"`
	BuildPath    *string    `json:"buildPath,omitempty"`
	ErrorMessage *string    `json:"error,omitempty"`
	Synthetic    bool       `json:"-"`
}

// Terminal reports whether the build is in a final state.
func (b *Build) Terminal() bool {
	return b.Status == "completed" || b.Status == "failed"
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to one webwrap server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// DemoFallback substitutes a synthetic record after FallbackAfter
	// consecutive failures so a demo UI stays usable while the server is
	// down. Off by default.
	DemoFallback  bool
	FallbackAfter int
}

// New creates a client for the given server base URL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		FallbackAfter: DefaultFallbackAfter,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", path, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Error,
		}
	}

	return &env, nil
}

// TriggerBuild creates a new build. The returned record carries only the id
// and initial status; poll GetBuild for the rest.
func (c *Client) TriggerBuild(ctx context.Context, appName, webviewURL string) (*Build, error) {
	env, err := c.do(ctx, http.MethodPost, "/builds/trigger", map[string]string{
		"appName":    appName,
		"webviewUrl": webviewURL,
	})
	if err != nil {
		return nil, err
	}

	var b Build
	if err := json.Unmarshal(env.Data, &b); err != nil {
		return nil, fmt.Errorf("decoding build: %w", err)
	}
	return &b, nil
}

// GetBuild reads one build's current state.
func (c *Client) GetBuild(ctx context.Context, id string) (*Build, error) {
	if c.DemoFallback && id == DemoBuildID {
		return demoBuild(), nil
	}

	env, err := c.do(ctx, http.MethodGet, "/builds/"+id, nil)
	if err != nil {
		return nil, err
	}

	var b Build
	if err := json.Unmarshal(env.Data, &b); err != nil {
		return nil, fmt.Errorf("decoding build: %w", err)
	}
	return &b, nil
}

// ListBuilds reads all builds, newest first.
func (c *Client) ListBuilds(ctx context.Context) ([]Build, error) {
	env, err := c.do(ctx, http.MethodGet, "/builds", nil)
	if err != nil {
		return nil, err
	}

	var builds []Build
	if err := json.Unmarshal(env.Data, &builds); err != nil {
		return nil, fmt.Errorf("decoding builds: %w", err)
	}
	return builds, nil
}

// DeleteBuild removes a build and its artifacts.
func (c *Client) DeleteBuild(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/builds/"+id, nil)
	return err
}

// DownloadURL returns the API download path for one artifact of a build.
func (c *Client) DownloadURL(id, fileType string) string {
	return fmt.Sprintf("%s/builds/%s/download?type=%s", c.BaseURL, id, fileType)
}

// Watch polls a build until it reaches a terminal state. onUpdate is called
// after every successful poll with the record and a cosmetic progress
// percentage (creeps upward while the build runs, snaps to 100 when done).
//
// Without demo fallback, FallbackAfter consecutive request failures abort
// the watch with the last error. With it, the watch resolves to a record
// flagged Synthetic instead.
func (c *Client) Watch(ctx context.Context, id string, interval time.Duration, onUpdate func(*Build, int)) (*Build, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	progress := 5
	failures := 0
	var lastErr error

	for {
		b, err := c.GetBuild(ctx, id)
		if err != nil {
			failures++
			lastErr = err
			if failures >= c.FallbackAfter {
				if c.DemoFallback {
					demo := demoBuild()
					demo.ID = id
					if onUpdate != nil {
						onUpdate(demo, 100)
					}
					return demo, nil
				}
				return nil, fmt.Errorf("giving up after %d consecutive errors: %w", failures, lastErr)
			}
		} else {
			failures = 0
			if b.Terminal() {
				if onUpdate != nil {
					onUpdate(b, 100)
				}
				return b, nil
			}
			progress = nextProgress(progress)
			if onUpdate != nil {
				onUpdate(b, progress)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// nextProgress advances the cosmetic progress value. It creeps upward
// pseudo-randomly and never reaches 100 before the build is terminal.
func nextProgress(current int) int {
	next := current + 1 + rand.Intn(7)
	if next > 95 {
		return 95
	}
	return next
}

// demoBuild returns the fixed synthetic record used in demo fallback.
func demoBuild() *Build {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	completed := created.Add(3 * time.Minute)
	apk := "/builds/" + DemoBuildID + "/download?type=apk"
	aab := "/builds/" + DemoBuildID + "/download?type=aab"
	buildPath := "builds/" + DemoBuildID

	return &Build{
		ID:          DemoBuildID,
		AppName:     "Demo App (offline)",
		WebviewURL:  "https://example.com",
		Status:      "completed",
		CreatedAt:   created,
		CompletedAt: &completed,
		APKURL:      &apk,
		AABURL:      &aab,
		BuildPath:   &buildPath,
		Synthetic:   true,
	}
}
