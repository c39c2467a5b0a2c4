package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"spendshelf/internal/config"
	"spendshelf/internal/db"
	"spendshelf/internal/handlers"
	applog "spendshelf/internal/log"
	"spendshelf/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("skipping .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := applog.SetLevel(cfg.Log.Level); err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.Log.Level, err)
	}

	database := db.MustConfigure(cfg.Database)

	srv, err := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		Database:  database,
		UploadDir: cfg.Uploads.Dir,
	})
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	if err := handlers.EnsureCategoryColors(context.Background()); err != nil {
		log.Fatalf("failed to backfill category colors: %v", err)
	}

	go func() {
		applog.Info(context.Background(), "starting http server", "addr", cfg.Server.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server encountered an error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	applog.Info(context.Background(), "shutting down http server")
	if err := srv.Stop(); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
}
