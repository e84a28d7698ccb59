// Package db opens the relational database and runs migrations.
// Postgres in deployments; sqlite when POSTGRES_HOST is unset so local
// runs need no external database.
package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/regscout/regscout-backend/internal/data"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

func Open(log *logger.Logger) (*gorm.DB, error) {
	host := envutil.Str("POSTGRES_HOST", "")

	if host == "" {
		path := envutil.Str("SQLITE_PATH", "regscout.db")
		log.Info("Opening sqlite database", "path", path)
		gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return gdb, nil
	}

	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "regscout")
	sslmode := envutil.Str("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)

	log.Info("Connecting to Postgres", "host", host, "database", name)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&data.Feedback{},
		&data.AccessCode{},
	)
}
