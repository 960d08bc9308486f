package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EduardoMirandaz/sabrinator/internal/api"
	"github.com/EduardoMirandaz/sabrinator/internal/auth"
	"github.com/EduardoMirandaz/sabrinator/internal/authstore"
	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/ingest"
	"github.com/EduardoMirandaz/sabrinator/internal/query"
	"github.com/EduardoMirandaz/sabrinator/internal/retention"
	"github.com/EduardoMirandaz/sabrinator/internal/taker"
	"github.com/EduardoMirandaz/sabrinator/internal/tracker"
	"github.com/EduardoMirandaz/sabrinator/pkg/vision"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitor and its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := authstore.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open account store")
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate account store")
		}

		tz := cfg.Eggs.Timezone()
		log := eventlog.New(cfg.Eggs.DataDir)
		detector := vision.New(cfg.Detector.BaseURL,
			vision.WithTimeout(time.Duration(cfg.Detector.TimeoutSecs)*time.Second))

		tr := tracker.New(log, detector, cfg.Eggs)
		pipeline := ingest.New(detector, tr, cfg.Eggs)
		authSvc := auth.New(store, cfg.Auth, tz)

		if _, err := authSvc.EnsureAdmin(ctx); err != nil {
			zap.L().Warn("bootstrap admin failed", zap.Error(err))
		}

		server := api.New(
			query.New(log, tz),
			taker.New(log, tz),
			pipeline,
			authSvc,
			store,
			cfg,
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.Router(),
		}

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if cfg.Retention.Enabled {
			sweeper := retention.New(log, *cfg)
			g.Go(func() error {
				return sweeper.RunPeriodic(ctx)
			})
		}

		if cfg.Ingest.SpoolDir != "" {
			watcher := ingest.NewWatcher(pipeline, cfg.Ingest.SpoolDir)
			g.Go(func() error {
				return watcher.Run(ctx)
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
