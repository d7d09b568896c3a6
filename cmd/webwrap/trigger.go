package main

import (
	"fmt"

	"webwrap/pkg/client"

	"github.com/spf13/cobra"
)

var (
	triggerServer  string
	triggerAppName string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <url>",
	Short: "Request a build for a website URL",
	Long: `Create a new build for the given website URL.

The app name is derived from the URL's hostname unless --name is given.
The command returns immediately with the new build id; use 'webwrap watch'
to follow the build to completion.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() {
	triggerCmd.Flags().StringVarP(&triggerServer, "server", "s", getEnvOrDefault("WEBWRAP_SERVER", "http://127.0.0.1:5000"), "Build API server URL")
	triggerCmd.Flags().StringVarP(&triggerAppName, "name", "n", "", "App display name (derived from the URL if omitted)")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	c := client.New(triggerServer)

	b, err := c.TriggerBuild(cmd.Context(), triggerAppName, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Build %s created (%s)\n", b.ID, b.Status)
	fmt.Printf("Follow it with: webwrap watch %s\n", b.ID)
	return nil
}
