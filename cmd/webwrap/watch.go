package main

import (
	"fmt"
	"time"

	"webwrap/pkg/client"

	"github.com/spf13/cobra"
)

var (
	watchServer   string
	watchInterval time.Duration
	watchDemo     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <build-id>",
	Short: "Follow a build until it finishes",
	Long: `Poll a build's status until it completes or fails.

With --demo, a synthetic offline record is shown after repeated server
errors so the command stays usable without a server. Synthetic records are
clearly flagged and never come from real data.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchServer, "server", "s", getEnvOrDefault("WEBWRAP_SERVER", "http://127.0.0.1:5000"), "Build API server URL")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", client.DefaultPollInterval, "Poll interval")
	watchCmd.Flags().BoolVar(&watchDemo, "demo", false, "Fall back to a synthetic record when the server is unreachable")
}

func runWatch(cmd *cobra.Command, args []string) error {
	c := client.New(watchServer)
	c.DemoFallback = watchDemo

	b, err := c.Watch(cmd.Context(), args[0], watchInterval, func(b *client.Build, progress int) {
		fmt.Printf("\r%s  %3d%%  %-12s", b.ID, progress, b.Status)
	})
	fmt.Println()
	if err != nil {
		return err
	}

	if b.Synthetic {
		fmt.Println("NOTE: server unreachable, showing synthetic demo data")
	}

	switch b.Status {
	case "completed":
		fmt.Printf("Build completed\n")
		if b.APKURL != nil {
			fmt.Printf("  APK: %s%s\n", watchServer, *b.APKURL)
		}
		if b.AABURL != nil {
			fmt.Printf("  AAB: %s%s\n", watchServer, *b.AABURL)
		}
	case "failed":
		msg := "unknown error"
		if b.ErrorMessage != nil {
			msg = *b.ErrorMessage
		}
		return fmt.Errorf("build failed: %s", msg)
	}

	return nil
}
