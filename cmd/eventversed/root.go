package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/config"
)

const configEnv = "EVENTVERSE_CONFIG"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "eventversed",
		Short: "EventVerse agents: natural-language access to the event canister",
		Long: `eventversed runs one EventVerse agent per process.

Roles:
  full          every event, payment and bitcoin tool
  events        event tools only
  payment       payment links only
  coordinator   routes queries to the events or payment agent`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON), defaults to $"+configEnv)

	load := func() (*config.Config, error) {
		path := strings.TrimSpace(configPath)
		if path == "" {
			path = strings.TrimSpace(os.Getenv(configEnv))
		}
		if path == "" {
			return config.Default(), nil
		}
		return config.Load(path)
	}

	root.AddCommand(newServeCmd(load), newAskCmd(), newToolsCmd(load))
	return root
}
