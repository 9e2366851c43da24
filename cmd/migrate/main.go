// Package main provides a CLI tool for running database migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/amm-analytics/internal/config"
	"github.com/amm-analytics/internal/logging"
	"github.com/amm-analytics/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbType = flag.String("db", "postgres", "Database type: postgres, clickhouse")
		dir    = flag.String("dir", "migrations", "Migrations root directory")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	switch *dbType {
	case "postgres":
		if err := runPostgresMigrations(cfg, *action, *dir+"/postgres"); err != nil {
			logging.Fatalf("Postgres migration failed: %v", err)
		}
	case "clickhouse":
		if err := runClickHouseMigrations(cfg, *action, *dir+"/clickhouse"); err != nil {
			logging.Fatalf("ClickHouse migration failed: %v", err)
		}
	default:
		logging.Fatalf("Unknown database type: %s", *dbType)
	}
}

func runPostgresMigrations(cfg *config.Config, action, migrationsPath string) error {
	migrator, err := storage.NewMigrator(&cfg.Database.Postgres, migrationsPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logging.WithError(err).Warn("Error closing migrator")
		}
	}()

	switch action {
	case "up":
		logging.Info("Running Postgres migrations")
		if err := migrator.Up(); err != nil {
			return err
		}
	case "down":
		logging.Info("Rolling back Postgres migration")
		if err := migrator.Down(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	logging.WithFields(map[string]interface{}{
		"action":  action,
		"version": version,
		"dirty":   dirty,
	}).Info("Postgres schema version")
	return nil
}

func runClickHouseMigrations(cfg *config.Config, action, migrationsPath string) error {
	if action != "up" {
		return fmt.Errorf("ClickHouse migrations only support 'up' action")
	}
	if cfg.Database.ClickHouse.Host == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is not set")
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}()

	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory not found: %s", migrationsPath)
	}

	ctx := logging.WithLogger(context.Background(), logging.GetGlobalLogger())
	executed, err := storage.RunClickHouseMigrations(ctx, db, migrationsPath)
	if err != nil {
		return err
	}

	logging.WithField("statements", executed).Info("ClickHouse migrations completed")
	return nil
}
