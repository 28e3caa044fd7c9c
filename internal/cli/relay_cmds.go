package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/marketsync/internal/app"
	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/config"
)

func (a *App) newRelayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the development relay",
		Long: `The relay serves the realtime WebSocket endpoint and the notification REST API
so the client can be exercised without the production backend.`,
	}
	cmd.AddCommand(a.newRelayServeCommand(), a.newRelayTokenCommand())
	return cmd
}

func (a *App) newRelayServeCommand() *cobra.Command {
	var overrides config.RelayConfig
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Relay
			cfg.UpdateFrom(overrides)

			relay, err := app.New(cfg, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info().Str("addr", cfg.Addr).Msg("starting marketsync relay")
			if err := relay.Run(cmd.Context()); err != nil {
				return fmt.Errorf("relay exited with error: %w", err)
			}
			a.logger.Info().Msg("relay stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	cmd.Flags().DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}

func (a *App) newRelayTokenCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:     "token <user-id>",
		Short:   "Issue a relay token for a user",
		Example: `  marketsync login --token "$(marketsync relay token u1 --name Ada)"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewService(app.JWTConfig(a.cfg.Relay)).IssueToken(args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name stored in the token")
	return cmd
}
