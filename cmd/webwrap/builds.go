package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"webwrap/pkg/client"

	"github.com/spf13/cobra"
)

var (
	buildsServer string
	buildsDelete string
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "List build records",
	Long:  `List all builds, newest first, or delete one with --delete.`,
	RunE:  runBuilds,
}

func init() {
	buildsCmd.Flags().StringVarP(&buildsServer, "server", "s", getEnvOrDefault("WEBWRAP_SERVER", "http://127.0.0.1:5000"), "Build API server URL")
	buildsCmd.Flags().StringVar(&buildsDelete, "delete", "", "Delete the build with this id instead of listing")
}

func runBuilds(cmd *cobra.Command, args []string) error {
	c := client.New(buildsServer)

	if buildsDelete != "" {
		if err := c.DeleteBuild(cmd.Context(), buildsDelete); err != nil {
			return err
		}
		fmt.Printf("Build %s deleted\n", buildsDelete)
		return nil
	}

	builds, err := c.ListBuilds(cmd.Context())
	if err != nil {
		return err
	}

	if len(builds) == 0 {
		fmt.Println("No builds yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPP\tSTATUS\tCREATED\tURL")
	for _, b := range builds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.AppName, b.Status, b.CreatedAt.Local().Format(time.RFC3339), b.WebviewURL)
	}
	return w.Flush()
}
