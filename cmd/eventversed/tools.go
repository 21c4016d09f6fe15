package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/backend"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/config"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/format"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/tools"
)

func newToolsCmd(load func() (*config.Config, error)) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools an agent role exposes to the LLM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if role == "" {
				cfg, err := load()
				if err != nil {
					return err
				}
				role = cfg.Agent.Role
			}
			ids, err := tools.ForRole(strings.ToLower(role))
			if err != nil {
				return err
			}
			adapter := backend.NewAdapter(backend.Config{})
			registry, err := tools.NewRegistry(ids,
				tools.WithHandler("backend route", adapter),
				tools.WithHandler("formatter", format.New()),
			)
			if err != nil {
				return err
			}

			routes := backend.DefaultRoutes()
			out := cmd.OutOrStdout()
			for _, def := range registry.Definitions() {
				route := routes[tools.ID(def.Name)]
				fmt.Fprintf(out, "%-28s %-4s %-30s %s\n", def.Name, route.Method, route.Path, def.Description)
				if required := requiredFields(def.Parameters); len(required) > 0 {
					fmt.Fprintf(out, "%-28s required: %s\n", "", strings.Join(required, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role to inspect, defaults to agent.role from the config")
	return cmd
}

func requiredFields(schema map[string]any) []string {
	var out []string
	switch v := schema["required"].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
