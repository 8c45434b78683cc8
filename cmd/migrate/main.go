package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/pkg/config"
	"github.com/noah-isme/reposition-api/pkg/database"
	"github.com/noah-isme/reposition-api/pkg/logger"
)

// Usage: migrate [up|down|status|version|redo|reset] [args...]
func main() {
	flag.Parse()
	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db, command, flag.Args()[min(1, flag.NArg()):]...); err != nil {
		logr.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logr.Info("migration finished", zap.String("command", command))
}
