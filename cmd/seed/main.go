// Package main seeds the category taxonomy and optionally bootstraps an
// administrator account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/civicmap/civicmap/internal/config"
	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/services/inventoryops"
	"github.com/civicmap/civicmap/internal/services/users"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/internal/storage/postgres"
	"github.com/civicmap/civicmap/internal/storage/postgres/migrations"
	"github.com/civicmap/civicmap/pkg/logger"
)

func main() {
	categories := flag.String("categories", "config/categories.yaml", "Path to the category taxonomy")
	adminEmail := flag.String("admin-email", "", "Bootstrap admin email (optional)")
	adminPassword := flag.String("admin-password", "", "Bootstrap admin password")
	flag.Parse()

	if err := run(*categories, *adminEmail, *adminPassword); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(categoriesPath, adminEmail, adminPassword string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log := logger.NewDefault("seed")

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	store := postgres.New(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	specs, err := config.LoadCategories(categoriesPath)
	if err != nil {
		return err
	}
	parents, children := toCategories(specs)

	inv := inventoryops.New(store, store, nil, nil, cfg.Inventory.AutoResolveThreshold, log)
	if err := inv.SeedCategories(ctx, parents, children); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	fmt.Printf("seeded %d categories\n", len(parents))

	if adminEmail != "" {
		if err := bootstrapAdmin(ctx, store, cfg, adminEmail, adminPassword, log); err != nil {
			return err
		}
	}
	return nil
}

func toCategories(specs []config.CategorySpec) ([]inventory.Category, map[string][]inventory.Category) {
	parents := make([]inventory.Category, 0, len(specs))
	children := make(map[string][]inventory.Category)
	for _, spec := range specs {
		parents = append(parents, inventory.Category{
			Code:      spec.Code,
			Name:      spec.Name,
			Icon:      spec.Icon,
			SortOrder: spec.SortOrder,
			Active:    spec.IsActive(),
		})
		for _, sub := range spec.Subcategories {
			children[spec.Code] = append(children[spec.Code], inventory.Category{
				Code:      sub.Code,
				Name:      sub.Name,
				Icon:      sub.Icon,
				SortOrder: sub.SortOrder,
				Active:    sub.IsActive(),
			})
		}
	}
	return parents, children
}

func bootstrapAdmin(ctx context.Context, store storage.UserStore, cfg *config.Config, email, password string, log *logger.Logger) error {
	if password == "" {
		return fmt.Errorf("-admin-password is required with -admin-email")
	}

	svc := users.New(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, nil, cfg.Server.BaseURL, log)
	u, err := svc.Register(ctx, email, "admin", password)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			fmt.Printf("admin %s already exists\n", email)
			return nil
		}
		return fmt.Errorf("register admin: %w", err)
	}
	if _, err := svc.SetRoles(ctx, u.ID, []string{user.RoleAdmin, user.RoleUser}); err != nil {
		return fmt.Errorf("grant admin role: %w", err)
	}
	if _, err := svc.Confirm(ctx, u.ID); err != nil {
		return fmt.Errorf("confirm admin: %w", err)
	}
	fmt.Printf("admin %s created\n", email)
	return nil
}
