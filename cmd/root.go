// Package cmd implements the tinyclaw CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "tinyclaw",
	Short: "tinyclaw — multi-channel conversational agent gateway",
	Long:  "tinyclaw routes chat messages from Telegram, Discord, Slack, WhatsApp, and OneBot transports\nthrough configured agents with tool use, provider failover, and scheduled tasks.",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.tinyclaw/config.{yaml,yml,json})")

	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(statusCmd)
}
