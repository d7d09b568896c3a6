package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"webwrap/internal/security"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random secret for callback or URL signing",
	Long: `Generate a cryptographically secure random secret suitable for the
callback_secret and signing_secret configuration values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := security.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}
