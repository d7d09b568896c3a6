// Package trigger fires repository_dispatch events at the GitHub Actions
// pipeline that builds wrapper apps.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"webwrap/internal/build"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single dispatch call.
const DefaultTimeout = 20 * time.Second

// Client delivers build request events to the external CI system. One
// dispatch per CreateBuild, no retries: GitHub offers no idempotency key
// for repository_dispatch, so a retry could start a duplicate CI run.
type Client struct {
	gh        *github.Client
	owner     string
	repo      string
	eventType string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGitHubClient creates an authenticated GitHub API client.
func NewGitHubClient(token string) *github.Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return github.NewClient(tc)
}

// New creates an authenticated trigger client.
func New(token, owner, repo, eventType string, timeout time.Duration, logger *slog.Logger) *Client {
	return NewWithClient(NewGitHubClient(token), owner, repo, eventType, timeout, logger)
}

// NewWithClient creates a trigger client around an existing GitHub client.
// Used by tests to point at a fake API server.
func NewWithClient(gh *github.Client, owner, repo, eventType string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		gh:        gh,
		owner:     owner,
		repo:      repo,
		eventType: eventType,
		timeout:   timeout,
		logger:    logger,
	}
}

// Dispatch fires one repository_dispatch event carrying the build id, app
// name and target URL. Returns only after GitHub acknowledges receipt; any
// non-2xx or transport failure is surfaced to the caller.
func (c *Client) Dispatch(ctx context.Context, ev build.DispatchEvent) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding dispatch payload: %w", err)
	}
	raw := json.RawMessage(payload)

	_, resp, err := c.gh.Repositories.Dispatch(ctx, c.owner, c.repo, github.DispatchRequestOptions{
		EventType:     c.eventType,
		ClientPayload: &raw,
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("dispatching %s event to %s/%s (status %d): %w",
			c.eventType, c.owner, c.repo, status, err)
	}

	c.logger.Info("build workflow triggered",
		"build_id", ev.BuildID,
		"repo", fmt.Sprintf("%s/%s", c.owner, c.repo),
		"event_type", c.eventType)

	return nil
}
