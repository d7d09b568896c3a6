package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"webwrap/internal/artifact"
	"webwrap/internal/artifactsync"
	"webwrap/internal/config"
	"webwrap/internal/store"
	"webwrap/internal/trigger"
	"webwrap/pkg/fileutil"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	syncConfigFile string
	syncDBPath     string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull finished CI artifacts once and exit",
	Long: `Make one artifact sync pass: for every non-terminal build, fetch the
finished Actions artifact zip (if any) and extract the APK/AAB into the
artifact store. The serve command runs the same sync continuously.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVarP(&syncConfigFile, "config", "c", getEnvOrDefault("WEBWRAP_CONFIG_FILE", ""), "Path to webwrap.yaml configuration file")
	syncCmd.Flags().StringVar(&syncDBPath, "db", getEnvOrDefault("WEBWRAP_DB_PATH", "./builds.db"), "Path to SQLite database")
}

func runSync(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if syncConfigFile == "" {
		syncConfigFile = fileutil.FindConfigOptional("webwrap.yaml")
		if syncConfigFile == "" {
			return fmt.Errorf("configuration file not found")
		}
	}

	cfg, err := config.Load(syncConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	st, err := store.New(syncDBPath)
	if err != nil {
		return fmt.Errorf("failed to open build record store: %w", err)
	}
	defer st.Close()

	signer := artifact.NewSigner(
		cfg.SigningSecret,
		cfg.Artifacts.BaseURL,
		time.Duration(cfg.Artifacts.SignedURLTTLMinutes)*time.Minute,
	)
	artifacts := artifact.NewFS(cfg.Artifacts.Dir, signer)

	syncer := artifactsync.New(
		trigger.NewGitHubClient(cfg.GitHub.Token),
		cfg.GitHub.Owner,
		cfg.GitHub.Repo,
		st,
		artifacts,
		logger,
	)

	return syncer.SyncOnce(cmd.Context())
}
