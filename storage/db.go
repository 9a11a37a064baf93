// Package storage provides the relational store behind the election portal:
// connection setup, migrations and the queries the integrity and service
// layers consume.
package storage

import (
	"fmt"
	stdlog "log"
	"os"

	"election-portal/config"
	"election-portal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens a database connection using the provided configuration.
func Open(cfg config.Config) (*gorm.DB, error) {
	// Silent GORM logger; only errors are interesting and those propagate anyway
	newLogger := logger.New(
		stdlog.New(os.Stdout, "", stdlog.LstdFlags),
		logger.Config{
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	switch cfg.DBDialect {
	case config.DatabaseSchemePostgres:
		return gorm.Open(postgres.Open(cfg.DBDsn), &gorm.Config{Logger: newLogger})
	default:
		return nil, fmt.Errorf("unsupported DB dialect: %s", cfg.DBDialect)
	}
}

// AutoMigrate runs database migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Admin{},
		&models.Nomination{},
		&models.Vote{},
		&models.VoteIntegrity{},
		&models.VerificationToken{},
		&models.AuditLog{},
		&models.ElectionSetting{},
	)
}
