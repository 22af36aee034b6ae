package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := open(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableConstraints && cfg.Driver == "postgres" {
		log.Info("applying postgres booking constraints")
		if err := applyConstraintDDL(db); err != nil {
			log.Warn("failed to apply some constraint DDL, continuing without them", zap.Error(err))
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates the schema for every persisted model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Machine{},
		&model.Booking{},
		&model.QueueCounter{},
		&model.QueueEntry{},
		&model.Session{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func open(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// applyConstraintDDL adds the range constraints GORM tags cannot express.
// Statements are idempotent so Init can run on every start.
func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		"DO $$ BEGIN " +
			"ALTER TABLE bookings ADD CONSTRAINT bookings_range_valid CHECK (start_at < end_at); " +
			"EXCEPTION WHEN duplicate_object THEN NULL; END $$;",

		// Half-open ranges: a booking ending at 15:00 does not collide with one starting at 15:00.
		"DO $$ BEGIN " +
			"ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap EXCLUDE USING GIST " +
			"(machine_id WITH =, tstzrange(start_at, end_at, '[)') WITH &&) WHERE (status <> 'cancelled'); " +
			"EXCEPTION WHEN duplicate_object THEN NULL; END $$;",

		"CREATE INDEX IF NOT EXISTS idx_sessions_machine_started ON sessions (machine_id, started_at DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
