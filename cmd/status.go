package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("tinyclaw %s\n\n", version)
	fmt.Printf("Config:    %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.WorkspacePath())
	fmt.Printf("Model:     %s\n\n", cfg.Agents.Defaults.Model)

	fmt.Println("Providers:")
	if len(cfg.Providers) == 0 {
		fmt.Println("  (none configured)")
	}
	for name := range cfg.Providers {
		label := name
		if spec := providers.FindByName(name); spec != nil {
			label = spec.Label()
		}
		fmt.Printf("  %s: configured\n", label)
	}

	fmt.Println("\nChannels:")
	printChannel("telegram", cfg.Channels.Telegram.Enabled)
	printChannel("discord", cfg.Channels.Discord.Enabled)
	printChannel("slack", cfg.Channels.Slack.Enabled)
	printChannel("whatsapp", cfg.Channels.WhatsApp.Enabled)
	printChannel("onebot", cfg.Channels.OneBot.Enabled)

	fmt.Printf("\nAgents: %d configured, %d bindings\n", len(cfg.Agents.Agents), len(cfg.Bindings))
	return nil
}

func printChannel(name string, enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("  %s: %s\n", name, state)
}
