package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"webwrap/internal/artifact"
	"webwrap/internal/artifactsync"
	"webwrap/internal/build"
	"webwrap/internal/config"
	"webwrap/internal/server"
	"webwrap/internal/store"
	"webwrap/internal/trigger"
	"webwrap/pkg/fileutil"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the build API server",
	Long: `Start the HTTP server for the build API.

The server accepts build requests, triggers the GitHub Actions pipeline,
reconciles build status against artifact presence, and serves signed
artifact downloads. A background syncer pulls finished Actions artifacts
into the local store.`,
	RunE: runServe,
}

func init() {
	// Flags for serve command
	serveCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("WEBWRAP_CONFIG_FILE", ""), "Path to webwrap.yaml configuration file")
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("WEBWRAP_LOG_FILE", "./webwrap.log"), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("WEBWRAP_DB_PATH", "./builds.db"), "Path to SQLite database")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("WEBWRAP_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("WEBWRAP_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("WEBWRAP_SKIP_RATE_LIMITS") == "1", "Enable test mode (no rate limits)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; secrets may come from the environment directly
	_ = godotenv.Load()

	// Determine config file path
	if configFile == "" {
		configFile = fileutil.FindConfigOptional("webwrap.yaml")
		if configFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range fileutil.DefaultConfigPaths("webwrap.yaml") {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return fmt.Errorf("configuration file not found")
		}
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting webwrap")

	// Load configuration
	logger.Info("Loading configuration", "config", configFile)
	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize build record store
	logger.Info("Initializing build record store", "db", dbPath)
	st, err := store.New(dbPath)
	if err != nil {
		logger.Error("Failed to initialize build record store", "error", err)
		return fmt.Errorf("failed to initialize build record store: %w", err)
	}
	defer st.Close()

	if !fileutil.DirExists(cfg.Artifacts.Dir) {
		logger.Info("Creating artifact directory", "dir", cfg.Artifacts.Dir)
		if err := os.MkdirAll(cfg.Artifacts.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}

	// Artifact store with signed download links
	signer := artifact.NewSigner(
		cfg.SigningSecret,
		cfg.Artifacts.BaseURL,
		time.Duration(cfg.Artifacts.SignedURLTTLMinutes)*time.Minute,
	)
	artifacts := artifact.NewFS(cfg.Artifacts.Dir, signer)

	// CI trigger client
	trig := trigger.New(
		cfg.GitHub.Token,
		cfg.GitHub.Owner,
		cfg.GitHub.Repo,
		cfg.GitHub.EventType,
		time.Duration(cfg.TriggerTimeoutSeconds)*time.Second,
		logger,
	)

	svc := build.NewService(st, artifacts, trig, logger)

	// Background artifact syncer
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	syncer := artifactsync.New(
		trigger.NewGitHubClient(cfg.GitHub.Token),
		cfg.GitHub.Owner,
		cfg.GitHub.Repo,
		st,
		artifacts,
		logger,
	)
	go syncer.Run(ctx, time.Duration(cfg.SyncIntervalMinutes)*time.Minute)

	// Create and start server
	srv := server.NewServer(svc, artifacts, signer, cfg.CallbackSecret, logger, testMode)

	logger.Info("Starting HTTP server", "host", host, "port", port)
	if err := srv.Start(host, port); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}
