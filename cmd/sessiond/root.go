package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "sessiond coordinates real-time therapy session lifecycles",
	Long: `sessiond keeps a two-party real-time session consistent across its three
backing resources: the Redis session state, the persistent chat room, and the
external room provider.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "sessiond.yaml", "Path to the configuration file")
}
