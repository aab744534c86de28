package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tendril",
	Short: "Tendril runs multi-agent conversations routed by agent chains",
	Long: `Tendril stores agents, conversations and the steps of every chain traversal,
and drives them forward with a worker fed by a notification hub.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML or TOML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log_level (debug, info, warn, error)")
}
