package config

import (
	"fmt"
	stdlog "log"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"grievance-management-api/models"
)

// DSN builds the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
	)
}

func (d DatabaseConfig) dialector() gorm.Dialector {
	if d.Driver == "postgres" {
		return postgres.Open(d.DSN())
	}
	return mysql.Open(d.DSN())
}

// OpenDB connects to the configured database. The caller owns the handle and
// releases it with CloseDB.
func OpenDB(cfg *Config) (*gorm.DB, error) {
	// In production, suppress SQL logs unless explicitly re-enabled via DEBUG_SQL=true.
	logLevel := logger.Info
	if cfg.IsProduction() && !cfg.Database.DebugSQL {
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		Logger: logger.New(
			stdlog.New(LogWriter, "\r\n", stdlog.LstdFlags),
			logger.Config{
				LogLevel:                  logLevel,
				SlowThreshold:             500 * time.Millisecond,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(cfg.Database.dialector(), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info().Str("driver", cfg.Database.Driver).Str("host", cfg.Database.Host).Msg("Database connected successfully")
	return db, nil
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn().Err(err).Msg("failed to access connection pool on close")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}
