package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/handlers"
	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/middleware"
	"github.com/Mighty-Nievl/mengundang-sub000/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var noScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reconciliation scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not start periodic reconciliation (API only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Named("serve")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var scheduler *services.Scheduler
	if !noScheduler {
		scheduler = services.NewScheduler(
			services.NewCommandExtractor(cfg.ExtractorCmd, cfg.ExtractorTimeout),
			a.engine,
			a.notifier,
			services.NewOutboxPinger(cfg.OutboxPingURL, cfg.InternalSecret),
			cfg.ReconcileInterval,
			cfg.OutboxPingInterval,
			cfg.ReconcileOnStart,
		)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SecurityMonitor())
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return err
	}
	r.Use(middleware.SetupCORS(cfg))

	handlers.RegisterRoutes(r, cfg, &handlers.Handlers{
		Store:     a.store,
		Engine:    a.engine,
		Referrals: a.referrals,
		Scheduler: scheduler,
		Cache:     a.cache,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("🚀 Сервер запущен", zap.String("port", cfg.Port), zap.Bool("scheduler", scheduler != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("🛑 Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
