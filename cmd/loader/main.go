package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"spendshelf/internal/config"
	"spendshelf/internal/db"
	"spendshelf/internal/ingest"
	applog "spendshelf/internal/log"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: loader <dataset.json>")
		os.Exit(2)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "load failed: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		applog.Warn(context.Background(), "skipping .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applog.SetLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	summary, err := ingest.LoadFile(context.Background(), database, path)
	if err != nil {
		return err
	}

	fmt.Printf("loaded %d categories, %d units, %d products, %d merchants, %d receipts (%d line items)\n",
		summary.Categories, summary.Units, summary.Products, summary.Merchants, summary.Receipts, summary.LineItems)
	return nil
}
