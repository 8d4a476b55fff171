// Package main implements the entry point for the task dispatch server,
// which accepts websocket and HTTP task submissions, schedules them across
// the short and long worker pools and streams results back to the
// submitting connection.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/config"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/platform/logger"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	flag.Parse()

	if err := run(context.Background(), *migrateCmd); err != nil {
		log.Printf("server exited with error: %v", err)
		os.Exit(1)
	}
}

// run loads configuration, sets up logging and the optional database and
// then either executes a migration command or serves until a shutdown
// signal arrives.
func run(ctx context.Context, migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("server configuration loaded",
		"app_name", cfg.Server.AppName,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database", cfg.Database.Enabled())

	db, err := openDatabase(ctx, cfg, l, migrateCmd == "")
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		if db == nil {
			return fmt.Errorf("migration %q requested but no database is configured", migrateCmd)
		}
		defer func() { _ = db.Close() }()
		return postgres.RunMigrations(ctx, db, migrateCmd, l)
	}

	app, err := newApplication(ctx, cfg, l, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// openDatabase connects, and migrates when autoMigrate is set, if a
// database URL is configured. It returns a nil *sql.DB otherwise.
func openDatabase(ctx context.Context, cfg *config.Config, l *slog.Logger, autoMigrate bool) (*sql.DB, error) {
	if !cfg.Database.Enabled() {
		l.Info("no database configured, execution history is disabled")
		return nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if autoMigrate {
		if err := postgres.Migrate(ctx, db, l); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	l.Info("database connection established")
	return db, nil
}
