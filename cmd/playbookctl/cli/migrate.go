package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/spark-playbook/playbook/migrations"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrate(func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("run migrations: %w", err)
					}
					cmd.Println("migrations applied")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrate(func(m *migrate.Migrate) error {
					if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("roll back migration: %w", err)
					}
					cmd.Println("rolled back one migration")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrate(func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						cmd.Println("no migrations applied")
						return nil
					}
					if err != nil {
						return fmt.Errorf("read migration version: %w", err)
					}
					cmd.Printf("version %d (dirty=%t)\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrate(fn func(*migrate.Migrate) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg.PGDSN))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	return fn(m)
}

// migrateURL switches a postgres DSN to the pgx/v5 driver scheme.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
