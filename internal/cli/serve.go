package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/marcelocantos/moodlelogs/internal/mcp"
)

func (a *App) serveMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the consolidate, list_rules and list_filters tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := mcp.New(mcp.Options{
				FS:         a.FS,
				ConfigPath: a.configPath,
				Logger:     a.logger,
				Version:    a.Version,
			})
			a.logger.Info("serving MCP on stdio", "config", a.configPath)
			err := s.Serve(cmd.Context(), a.Stdin, a.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return failed(err)
		},
	}
}
