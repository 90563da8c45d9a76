package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	deliverydomain "github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	orderdomain "github.com/smallbiznis/futorumeshi/internal/order/domain"
	paymentdomain "github.com/smallbiznis/futorumeshi/internal/payment/domain"
	referraldomain "github.com/smallbiznis/futorumeshi/internal/referral/domain"
	subscriptiondomain "github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations. Tables are created on startup so a
// fresh database is usable without a separate migrate step.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&referraldomain.Referrer{},
		&orderdomain.Order{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.BillingEvent{},
		&deliverydomain.Delivery{},
		&paymentdomain.EventRecord{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for sqlite and mysql, which
// the embedded SQL does not target.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
