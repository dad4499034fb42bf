package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/owoblo/quote2move/internal/api"
	"github.com/owoblo/quote2move/internal/store"
)

var (
	servePort      int
	pruneInterval  time.Duration
	shutdownPeriod = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quoting HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := api.NewServer(cfg.Server, api.Deps{
			Detector:  env.Detector,
			Estimator: env.Estimator,
			Upsells:   env.Upsells,
			Store:     env.Store,
			Metrics:   env.Metrics,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go pruneCache(ctx, env.Store, pruneInterval)

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownPeriod)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// pruneCache deletes expired estimate cache entries every interval until
// ctx is done.
func pruneCache(ctx context.Context, st store.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredEstimates(ctx)
			if err != nil {
				zap.L().Warn("prune estimate cache", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Debug("pruned estimate cache", zap.Int("deleted", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&pruneInterval, "prune-interval", 10*time.Minute, "how often expired cache entries are deleted (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
