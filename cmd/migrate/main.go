// Command libcatalog-migrate runs goose commands against the embedded migrations.
//
//	libcatalog-migrate --dsn postgres://... status
//	libcatalog-migrate --dsn postgres://... down-to 1
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/and161185/libcatalog/internal/migrate"
)

func main() {
	fs := pflag.NewFlagSet("libcatalog-migrate", pflag.ContinueOnError)
	dsn := fs.String("dsn", os.Getenv("LIBCAT_DSN"), "PostgreSQL DSN")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	args := fs.Args()
	if *dsn == "" || len(args) == 0 {
		logger.Fatal("usage: libcatalog-migrate --dsn DSN <up|down|status|version|redo|reset|down-to N|up-to N>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Run(ctx, *dsn, args[0], args[1:]...); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
}
