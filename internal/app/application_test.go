package app

import (
	"context"
	"testing"

	"github.com/civicmap/civicmap/internal/config"
	"github.com/civicmap/civicmap/internal/services/inventoryops"
)

func reportFixture() inventoryops.ReportInput {
	return inventoryops.ReportInput{
		Title:     "Banc trencat",
		Latitude:  41.12,
		Longitude: 1.25,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{BaseURL: "https://civicmap.test"},
		Mail:   config.MailConfig{Provider: "console"},
		Inventory: config.InventoryConfig{
			AutoResolveThreshold: 3,
			FallbackBounds:       [4]float64{40.5, 41.5, 0.5, 2.0},
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret"},
	}
}

func TestNewDefaultsToMemoryStores(t *testing.T) {
	application, err := New(testConfig(), Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	// The services must be usable end to end on the defaults.
	u, err := application.Users.Register(context.Background(), "a@b.c", "a", "supersecret")
	if err != nil {
		t.Fatalf("register through defaults: %v", err)
	}
	if u.ID == "" {
		t.Fatal("user not persisted")
	}

	item, err := application.Inventory.Report(context.Background(), reportFixture())
	if err != nil {
		t.Fatalf("report through defaults: %v", err)
	}
	if item.ID == "" {
		t.Fatal("item not persisted")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	application, err := New(testConfig(), Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := application.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
	if err := application.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil, Stores{}, Options{}, nil); err == nil {
		t.Fatal("nil config accepted")
	}
}
