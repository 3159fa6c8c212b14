// Package main imports census district and section boundaries from a GeoJSON
// file into the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/civicmap/civicmap/internal/config"
	"github.com/civicmap/civicmap/internal/services/sections"
	"github.com/civicmap/civicmap/internal/storage/postgres"
	"github.com/civicmap/civicmap/internal/storage/postgres/migrations"
	"github.com/civicmap/civicmap/pkg/logger"
)

func main() {
	file := flag.String("file", "", "Path to the GeoJSON feature collection")
	timeout := flag.Duration("timeout", 5*time.Minute, "Import deadline")
	flag.Parse()

	if err := run(*file, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, timeout time.Duration) error {
	if path == "" {
		return fmt.Errorf("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log := logger.NewDefault("zoneimport")

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open geojson: %w", err)
	}
	defer f.Close()

	svc := sections.New(postgres.New(db), sections.Bounds{
		MinLat: cfg.Inventory.FallbackBounds[0],
		MaxLat: cfg.Inventory.FallbackBounds[1],
		MinLng: cfg.Inventory.FallbackBounds[2],
		MaxLng: cfg.Inventory.FallbackBounds[3],
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stats, err := svc.ImportGeoJSON(ctx, f)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}

	fmt.Printf("imported %d districts, %d sections (%d features skipped)\n",
		stats.Districts, stats.Sections, stats.Skipped)
	return nil
}
