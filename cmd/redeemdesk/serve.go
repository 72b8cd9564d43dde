package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"redeemdesk/internal/server"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP command surface and block watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		// An empty directory is a valid state; the error is already reported.
		if _, err := a.ctrl.LoadCollaterals(ctx); err != nil {
			a.log.WithError(err).Error("collateral directory unavailable")
		}

		apiServer := server.NewServer(a.ctrl, server.Options{
			Port:          a.cfg.Service.HTTPPort,
			HMACSecret:    a.cfg.Service.HMACSecret,
			HMACClockSkew: a.cfg.Service.HMACClockSkew,
			RPC:           a.client,
			Feed:          a.feed,
			Journal:       a.journal,
			Logger:        a.log,
		})
		a.startChain(ctx, apiServer.ObserveBlockError)

		errCh := make(chan error, 1)
		go func() {
			errCh <- apiServer.Start()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	},
}
