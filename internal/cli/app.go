// Package cli implements the marketsync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/marketsync/internal/config"
	"github.com/vovakirdan/marketsync/internal/log"
)

// App carries configuration and the logger shared by every command.
type App struct {
	version string

	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	cfg        config.Config
	configPath string
	logger     *zerolog.Logger
}

// New creates an App with a disabled logger until flags are parsed.
func New(version string) *App {
	nop := zerolog.Nop()
	return &App{
		version: version,
		cfg:     config.Default(),
		logger:  &nop,
	}
}

// Execute runs the command line with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	return a.execute(ctx, args, nil)
}

func (a *App) execute(ctx context.Context, args []string, out io.Writer) error {
	root := a.rootCommand()
	root.SetArgs(args)
	if out != nil {
		root.SetOut(out)
	}
	return root.ExecuteContext(ctx)
}

// Logger returns the configured logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "marketsync",
		Short:   "Real-time sync client for the marketplace",
		Version: a.version,
		Long: `marketsync keeps booking, messaging and notification state in sync with
the marketplace realtime channels and plays alerts for incoming events.

It also ships a development relay that speaks the same protocol.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is <user config dir>/marketsync/config.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "load environment variables from this file (default .env when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: console or json")

	root.AddCommand(
		a.newLoginCommand(),
		a.newLogoutCommand(),
		a.newWhoamiCommand(),
		a.newWatchCommand(),
		a.newNotificationsCommand(),
		a.newRelayCommand(),
	)
	return root
}

// setup runs before every command: env file, config, logger.
func (a *App) setup(_ *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", a.envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	bootstrap := log.New("warn", "console")
	cfg, path, err := config.Load(bootstrap, a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}

	a.cfg = cfg
	a.configPath = path
	a.logger = log.New(cfg.LogLevel, cfg.LogFormat)
	a.logger.Debug().Str("config", path).Msg("configuration loaded")
	return nil
}

// ContextWithSignals returns a context cancelled on SIGINT or SIGTERM.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("marketsync: " + err.Error() + "\n")
		os.Exit(1)
	}
}
