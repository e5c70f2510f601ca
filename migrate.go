package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database/migrations"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

// prepareSchema applies the SQL migrations when MIGRATE_ON_START is set.
// AUTO_SCHEMA creates any missing tables straight from the models instead,
// which is only meant for local development.
func prepareSchema(ctx context.Context, cfg *config.Config, db *bun.DB, log *logger.Logger) error {
	if onStart, _ := strconv.ParseBool(os.Getenv("MIGRATE_ON_START")); onStart {
		runner := migrations.NewRunner(db, migrations.Options{Dir: cfg.Database.MigrationsDir}, log)
		defer runner.Close()
		if err := runner.Run(); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		return nil
	}

	if cfg.Database.AutoSchema {
		log.Warn("DATABASE", "AUTO_SCHEMA enabled, creating missing tables from models")
		if err := models.CreateSchema(ctx, db); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		log.LogDatabase("CREATE_SCHEMA", "*", "all tables present")
	}
	return nil
}
