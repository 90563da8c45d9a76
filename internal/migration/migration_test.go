package migration

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestAutoMigrateCreatesTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	// idempotent
	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("second auto migrate: %v", err)
	}

	for _, table := range []string{
		"referrers",
		"orders",
		"subscriptions",
		"subscription_billing_events",
		"subscription_deliveries",
		"payment_events",
	} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}

	ups, downs := 0, 0
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}
