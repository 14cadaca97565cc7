// Command libcatalog-server starts the library catalog HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/and161185/libcatalog/internal/config"
	pkgcrypto "github.com/and161185/libcatalog/internal/crypto"
	"github.com/and161185/libcatalog/internal/csrf"
	"github.com/and161185/libcatalog/internal/limiter"
	"github.com/and161185/libcatalog/internal/migrate"
	"github.com/and161185/libcatalog/internal/repository/postgres"
	httpserver "github.com/and161185/libcatalog/internal/server/http"
	"github.com/and161185/libcatalog/internal/service"
	"github.com/and161185/libcatalog/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves HTTP until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:], ".env")
	if errors.Is(err, pflag.ErrHelp) {
		return
	}

	var logger *zap.Logger
	if cfg != nil && cfg.Dev {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("jwtAlg", string(cfg.JWTAlg)),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	authorRepo := postgres.NewAuthorRepo(db)
	bookRepo := postgres.NewBookRepo(db)

	lim := limiter.NewPG(db.Pool, limiter.DefaultPolicy)

	// Token authorities
	tokens, err := token.NewAuthority([]byte(cfg.JWTKey), cfg.JWTAlg)
	if err != nil {
		logger.Fatal("token authority", zap.Error(err))
	}
	guard, err := csrf.NewGuard([]byte(cfg.CSRFKey))
	if err != nil {
		logger.Fatal("csrf guard", zap.Error(err))
	}

	// Services
	authSvc := service.NewAuthService(userRepo, pkgcrypto.NewHasher(pkgcrypto.DefaultParams), tokens, cfg.AccessTTL, lim)
	catalogSvc := service.NewCatalogService(authorRepo, bookRepo, 100)
	uploads, err := service.NewDiskUploads(cfg.UploadDir, cfg.MaxUpload)
	if err != nil {
		logger.Fatal("upload dir", zap.Error(err))
	}

	app := httpserver.New(logger, authSvc, catalogSvc, uploads, guard, httpserver.Config{
		CSRFMaxAge:   cfg.CSRFMaxAge,
		MaxUpload:    cfg.MaxUpload,
		SecureCookie: !cfg.Dev,
		Ping:         db.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
