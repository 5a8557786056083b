package storage

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rmrecorder/recentmessages/internal/config"
)

//go:embed migrations/main/*.sql
var mainMigrations embed.FS

//go:embed migrations/shard/*.sql
var shardMigrations embed.FS

// RunMigrations applies the embedded main and shard migration trees to
// every partition of cfg, mirroring the two independent migration sets
// the original server embeds for its main and shard databases.
func RunMigrations(cfg *config.DBConfig) error {
	if err := runMigrationTree(mainMigrations, "migrations/main", cfg.MainDB); err != nil {
		return fmt.Errorf("migrate main partition: %w", err)
	}
	for i, shard := range cfg.ShardDB {
		if err := runMigrationTree(shardMigrations, "migrations/shard", shard); err != nil {
			return fmt.Errorf("migrate shard partition %d: %w", i+1, err)
		}
	}
	return nil
}

func runMigrationTree(fs embed.FS, root string, dbCfg config.DatabaseConfig) error {
	src, err := iofs.New(fs, root)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance(root, src, "postgres://"+dsnAsURL(dbCfg))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// dsnAsURL renders dbCfg as the libpq-URL form golang-migrate's postgres
// driver expects, reusing the same fields as DatabaseConfig.DSN.
func dsnAsURL(d config.DatabaseConfig) string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, sslmode)
}
