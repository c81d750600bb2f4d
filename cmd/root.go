package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "esign",
	Short: "E-signature orchestration service",
	Long: `E-signature service coordinating multi-party document signing:
signing requests, provider webhook ingestion and completion handling
for the backstage platform.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
