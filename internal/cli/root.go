package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/orderflow/internal/config"
	"github.com/roach88/orderflow/internal/logstore/natsnotify"
	"github.com/roach88/orderflow/internal/logstore/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	LogFormat  string // "text" | "json"
	ConfigPath string
	Database   string // overrides the configured database when set
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidLogFormats defines the allowed log handler formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the orderflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "orderflow",
		Short: "orderflow - event-sourced order processing",
		Long: `Order processing on an append-only event log.

Orders and inventory are event-sourced deciders; a process-order saga
reserves stock for placed orders and confirms or cancels them. Commands
arrive over HTTP (serve) or directly from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !slices.Contains(ValidLogFormats, opts.LogFormat) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats))
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), opts.Verbose, opts.LogFormat))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPlaceOrderCommand(opts))
	cmd.AddCommand(NewReceiveCommand(opts))
	cmd.AddCommand(NewStreamCommand(opts))
	cmd.AddCommand(NewStreamsCommand(opts))
	cmd.AddCommand(NewParkedCommand(opts))

	return cmd
}

// newLogger builds the process logger: Info by default, Debug when verbose.
func newLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// loadConfig reads the configuration and applies command-line overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	return cfg, nil
}

// openStore opens the configured log database.
func openStore(cfg config.Config, opts ...sqlite.Option) (*sqlite.Store, error) {
	opts = append([]sqlite.Option{
		sqlite.WithPollInterval(cfg.PollInterval),
		sqlite.WithLogger(slog.Default()),
	}, opts...)
	st, err := sqlite.Open(cfg.Database, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openNotifyingStore opens the log database for commands that append. When
// NATS is configured, appends are published so a running serve process
// wakes immediately. The returned func closes the store and the notifier.
func openNotifyingStore(cfg config.Config) (*sqlite.Store, func(), error) {
	logger := slog.Default()

	var opts []sqlite.Option
	closeNotifier := func() {}
	if cfg.NATSURL != "" {
		notifier, err := natsnotify.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to connect to NATS", err)
		}
		closeNotifier = func() {
			if err := notifier.Close(); err != nil {
				logger.Error("error closing NATS notifier", "error", err)
			}
		}
		opts = append(opts, sqlite.WithNotifier(notifier))
		logger.Debug("append notifications enabled", "nats_url", cfg.NATSURL, "subject", cfg.NATSSubject)
	}

	st, err := openStore(cfg, opts...)
	if err != nil {
		closeNotifier()
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
		closeNotifier()
	}, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
