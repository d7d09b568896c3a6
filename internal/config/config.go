// Package config loads and validates the webwrap service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"webwrap/internal/security"
)

const (
	MinSecretLength = 32

	DefaultEventType           = "build-app"
	DefaultSignedURLTTLMinutes = 15
	DefaultTriggerTimeoutSecs  = 20
	DefaultSyncIntervalMinutes = 2
)

// ForbiddenSecrets are placeholder values that must never reach production.
var ForbiddenSecrets = map[string]bool{
	"replace-with-secret": true,
	"topsecret":           true,
	"secret":              true,
	"password":            true,
	"changeme":            true,
}

var ownerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// GitHubConfig identifies the Actions repository that builds wrapper apps.
type GitHubConfig struct {
	Owner     string `yaml:"owner"`
	Repo      string `yaml:"repo"`
	EventType string `yaml:"event_type"`
	Token     string `yaml:"token"`
}

// ArtifactsConfig configures artifact storage and download link signing.
type ArtifactsConfig struct {
	Dir                 string `yaml:"dir"`
	BaseURL             string `yaml:"base_url"`
	SignedURLTTLMinutes int    `yaml:"signed_url_ttl_minutes"`
}

// Config is the root configuration structure.
type Config struct {
	GitHub                GitHubConfig    `yaml:"github"`
	Artifacts             ArtifactsConfig `yaml:"artifacts"`
	CallbackSecret        string          `yaml:"callback_secret"`
	SigningSecret         string          `yaml:"signing_secret"`
	TriggerTimeoutSeconds int             `yaml:"trigger_timeout_seconds"`
	SyncIntervalMinutes   int             `yaml:"sync_interval_minutes"`
}

// Load reads and validates the configuration from a YAML file. Secrets may
// come from the environment instead of the file: GITHUB_TOKEN,
// WEBWRAP_CALLBACK_SECRET and WEBWRAP_SIGNING_SECRET override file values.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Environment overrides for secrets
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("WEBWRAP_CALLBACK_SECRET"); v != "" {
		cfg.CallbackSecret = v
	}
	if v := os.Getenv("WEBWRAP_SIGNING_SECRET"); v != "" {
		cfg.SigningSecret = v
	}

	applyDefaults(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.GitHub.EventType == "" {
		cfg.GitHub.EventType = DefaultEventType
	}
	if cfg.Artifacts.SignedURLTTLMinutes == 0 {
		cfg.Artifacts.SignedURLTTLMinutes = DefaultSignedURLTTLMinutes
	}
	if cfg.TriggerTimeoutSeconds == 0 {
		cfg.TriggerTimeoutSeconds = DefaultTriggerTimeoutSecs
	}
	if cfg.SyncIntervalMinutes == 0 {
		cfg.SyncIntervalMinutes = DefaultSyncIntervalMinutes
	}
}

// Validate checks a configuration and returns a list of problems, one per
// invalid field.
func Validate(cfg *Config) []string {
	var errors []string

	if cfg.GitHub.Owner == "" {
		errors = append(errors, "  - github.owner is required")
	} else if !ownerRepoPattern.MatchString(cfg.GitHub.Owner) {
		errors = append(errors, fmt.Sprintf("  - github.owner contains invalid characters: %q", cfg.GitHub.Owner))
	}

	if cfg.GitHub.Repo == "" {
		errors = append(errors, "  - github.repo is required")
	} else if !ownerRepoPattern.MatchString(cfg.GitHub.Repo) {
		errors = append(errors, fmt.Sprintf("  - github.repo contains invalid characters: %q", cfg.GitHub.Repo))
	}

	if cfg.GitHub.Token == "" {
		errors = append(errors, "  - github.token is required (or set GITHUB_TOKEN)")
	}

	if cfg.Artifacts.Dir == "" {
		errors = append(errors, "  - artifacts.dir is required")
	} else if !filepath.IsAbs(cfg.Artifacts.Dir) {
		errors = append(errors, fmt.Sprintf("  - artifacts.dir must be absolute, got %q", cfg.Artifacts.Dir))
	}

	if cfg.Artifacts.BaseURL == "" {
		errors = append(errors, "  - artifacts.base_url is required")
	} else if !strings.HasPrefix(cfg.Artifacts.BaseURL, "http://") && !strings.HasPrefix(cfg.Artifacts.BaseURL, "https://") {
		errors = append(errors, fmt.Sprintf("  - artifacts.base_url must be an http(s) URL, got %q", cfg.Artifacts.BaseURL))
	}

	errors = append(errors, validateSecret("callback_secret", cfg.CallbackSecret)...)
	errors = append(errors, validateSecret("signing_secret", cfg.SigningSecret)...)

	if cfg.Artifacts.SignedURLTTLMinutes < 0 {
		errors = append(errors, fmt.Sprintf("  - artifacts.signed_url_ttl_minutes must be positive, got %d", cfg.Artifacts.SignedURLTTLMinutes))
	}
	if cfg.TriggerTimeoutSeconds < 0 {
		errors = append(errors, fmt.Sprintf("  - trigger_timeout_seconds must be positive, got %d", cfg.TriggerTimeoutSeconds))
	}
	if cfg.SyncIntervalMinutes < 0 {
		errors = append(errors, fmt.Sprintf("  - sync_interval_minutes must be positive, got %d", cfg.SyncIntervalMinutes))
	}

	return errors
}

func validateSecret(name, secret string) []string {
	var errors []string
	if secret == "" {
		errors = append(errors, fmt.Sprintf("  - %s is required (or set WEBWRAP_%s)", name, strings.ToUpper(name)))
		return errors
	}
	if len(secret) < MinSecretLength {
		errors = append(errors, fmt.Sprintf("  - %s too short (minimum %d characters)", name, MinSecretLength))
		return errors
	}
	if ForbiddenSecrets[strings.ToLower(secret)] {
		errors = append(errors, fmt.Sprintf("  - %s appears to be a placeholder value, replace with real secret", name))
	} else if security.IsWeakSecret(secret) {
		errors = append(errors, fmt.Sprintf("  - %s is too predictable, generate one with 'webwrap secret'", name))
	}
	return errors
}
