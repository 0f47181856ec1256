package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/iaccessible/internal/application"
	appcredits "github.com/bryanwahyu/iaccessible/internal/application/credits"
	appscans "github.com/bryanwahyu/iaccessible/internal/application/scans"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/iaccessible/internal/infra/engine"
	"github.com/bryanwahyu/iaccessible/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/iaccessible/internal/infra/storage"
	"github.com/bryanwahyu/iaccessible/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	conn, dialect, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ledger := sqlstore.NewLedger(conn, dialect)
	svc := &appscans.Service{
		Repo:          sqlstore.NewScanRepository(conn, dialect),
		Ledger:        ledger,
		Engines:       engine.NewFactory(engineOptions()),
		Errors:        sqlstore.NewScanErrorRepository(conn, dialect),
		Clock:         application.SystemClock{},
		Logger:        logger,
		Cost:          cfg.Credits.WebpageScanCost,
		EngineTimeout: time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: conn},
	}

	// init minio
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init error: %w", err)
		}
		svc.Archive = store
		checkers["report_archive"] = middleware.CheckFunc(store.Ping)
	}

	ready := &middleware.Readiness{}
	handler := httpserver.NewRouter(httpserver.Deps{
		Scans:             svc,
		Credits:           appcredits.NewService(ledger, logger),
		Verifier:          newVerifier(),
		Logger:            logger,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimitCapacity: cfg.Server.RateLimitCapacity,
		RateLimitRefill:   cfg.Server.RateLimitRefill,
		HealthCheckers:    checkers,
		Readiness:         ready,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("driver", dialect.String()),
			zap.String("auth", cfg.Auth.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	logger.Info("shutting down server")
	ready.Drain()

	ctx2, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
