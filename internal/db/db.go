package db

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BruksfildServices01/slot-scheduler/internal/config"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

func NewDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBUrl), &gorm.Config{
		PrepareStmt: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		Logger: gormlogger.New(
			log.New(os.Stderr, "", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             500 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	for _, stmt := range overlapGuard {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("overlap exclusion constraint not installed", "error", err)
			break
		}
	}

	return db, nil
}

// overlapGuard rejects overlapping active slots of one entity at the
// database level. It needs btree_gist; without it the entity lock alone
// keeps slots disjoint.
var overlapGuard = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`DO $$ BEGIN
		ALTER TABLE time_slots ADD CONSTRAINT time_slots_no_overlap
			EXCLUDE USING gist (
				entity_id WITH =,
				day_key WITH =,
				tstzrange(start_at, end_at, '[)') WITH &&
			)
			WHERE (state IN ('created', 'modified', 'approved', 'restored'))
			DEFERRABLE INITIALLY DEFERRED;
	EXCEPTION WHEN duplicate_object THEN NULL;
	END $$`,
}
