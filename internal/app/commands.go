// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/halcyonrmm/halcyon/internal/repository/postgres"
)

// RunMigrations runs database migrations. Action is "up", "status", or
// "down:N" to roll back the most recent N migrations.
func RunMigrations(cfgFile, action string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	db, err := postgres.New(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	switch {
	case action == "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	case action == "status":
		return printMigrationStatus(ctx, db)
	case strings.HasPrefix(action, "down:"):
		steps, err := strconv.Atoi(strings.TrimPrefix(action, "down:"))
		if err != nil || steps < 1 {
			return fmt.Errorf("invalid migration step count in %q", action)
		}
		if err := db.MigrateDown(ctx, steps); err != nil {
			return err
		}
		fmt.Printf("rolled back %d migration(s)\n", steps)
		return nil
	default:
		return fmt.Errorf("unknown migration action: %s (use up, status, or down:N)", action)
	}
}

func printMigrationStatus(ctx context.Context, db *postgres.DB) error {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, entry := range status {
		state := "pending"
		if entry.Applied {
			state = "applied " + entry.AppliedAt.Format(time.RFC3339)
		}
		fmt.Printf("%03d %-30s %s\n", entry.Version, entry.Name, state)
	}
	return nil
}

// CheckConfig loads and validates the configuration, printing a masked
// summary on success.
func CheckConfig(cfgFile string) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.PrintMasked()
	return nil
}
