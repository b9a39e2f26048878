package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datafinder/internal/history"
	"github.com/JonMunkholm/datafinder/internal/web"
)

func newServeCommand(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(a.context(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.store != nil {
				go history.StartPruner(ctx, a.store, history.PruneConfig{
					Retention: a.cfg.History.Retention,
					Interval:  a.cfg.History.PruneInterval,
				}, a.logger)
			}

			server := web.NewServer(a.service, a.cfg, a.logger)
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("shutdown error", "error", err)
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: SERVER_PORT)")
	return cmd
}
