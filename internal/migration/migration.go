package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/loadpass/internal/checkout/domain"
	creditdomain "github.com/smallbiznis/loadpass/internal/credit/domain"
	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
	usermetadomain "github.com/smallbiznis/loadpass/internal/usermeta/domain"
	"gorm.io/gorm"
)

// Models lists every table the service owns, in creation order.
func Models() []any {
	return []any{
		&usermetadomain.UserMetadata{},
		&catalogdomain.Package{},
		&checkoutdomain.PendingTransaction{},
		&creditdomain.PaymentHistory{},
		&paymentdomain.EventRecord{},
	}
}

// RunMigrations applies the embedded postgres migrations.
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
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// Apply migrates conn with SQL files on postgres and AutoMigrate elsewhere.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
