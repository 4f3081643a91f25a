package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/rvoc"
)

func newWebCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Serve the HTTP API and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.config.Passwords.Pepper == "" {
				return fmt.Errorf("%w: passwords.pepper is empty (set %s)", rvoc.ErrInvalidConfig, rvoc.EnvPasswordPepper)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, cleanup, err := a.buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := eng.Start(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              a.config.HTTP.ListenAddress,
				Handler:           eng.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("listening", slog.String("address", srv.Addr))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.HTTP.ShutdownTimeout)
				defer cancel()
				httpErr := srv.Shutdown(shutdownCtx)
				return errors.Join(httpErr, eng.Stop(shutdownCtx))
			})
			return g.Wait()
		},
	}
}
