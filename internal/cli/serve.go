package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/orderflow/internal/compose"
	"github.com/roach88/orderflow/internal/config"
	"github.com/roach88/orderflow/internal/httpapi"
	"github.com/roach88/orderflow/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	HTTPAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the subscribers and the HTTP command API",
		Long: `Run the order-processing runtime.

Creates the persistent subscriptions if they do not exist yet, starts one
consumer per subscription, and accepts commands over HTTP until SIGINT or
SIGTERM. Settings come from --config and ORDERFLOW_* environment variables.

Example:
  orderflow serve --db ./orderflow.db
  ORDERFLOW_NATS_URL=nats://localhost:4222 orderflow serve -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if opts.HTTPAddr != "" {
				cfg.HTTPAddr = opts.HTTPAddr
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", "", "HTTP listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, cfg config.Config) error {
	logger := slog.Default()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("error flushing traces", "error", err)
		}
	}()

	logger.Info("opening database", "path", cfg.Database)
	st, closeStore, err := openNotifyingStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	root, err := compose.New(st, compose.Options{
		CheckpointInterval: cfg.CheckpointInterval,
		Logger:             logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build runtime", err)
	}
	if err := root.Setup(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to create subscriptions", err)
	}
	consumers, err := root.Start(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start subscribers", err)
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = consumers.Close()
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler: httpapi.New(root.Order, root.Inventory, logger).Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	logger.Info("orderflow started", "http_addr", lis.Addr().String())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", lis.Addr())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = WrapExitError(ExitFailure, "HTTP server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("HTTP server stopped")

	if err := consumers.Close(); err != nil {
		logger.Error("subscriber stopped with error", "error", err)
	}
	logger.Info("shutdown complete")
	return runErr
}
