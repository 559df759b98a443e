package db

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/somerville/nbhd-map/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the Postgres connection described by dsn.
func Connect(dsn string, slowQuery time.Duration, log *logger.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connect: DATABASE_URL is empty")
	}

	// Parse with pgx first so a malformed URL fails before gorm and the
	// log line carries the target without the password.
	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	log.Info("Connecting to database", "host", pc.Host, "port", pc.Port, "database", pc.Database, "user", pc.User)

	if slowQuery <= 0 {
		slowQuery = 100 * time.Millisecond
	}
	lg := gormlogger.New(
		log.Std(),
		gormlogger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: lg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("Connected to database")
	return gdb, nil
}
