package testutil

import (
	"errors"
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/rollup-backend/internal/denorm"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens the shared integration database with the rollup engine
// installed, migrating the schema on first use. Tests are skipped when
// TEST_POSTGRES_DSN is unset.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			dbErr = err
			return
		}

		if err := autoMigrateAll(db); err != nil {
			dbErr = err
			return
		}

		if err := db.Use(denorm.New(types.RollupRegistry())); err != nil {
			dbErr = err
			return
		}
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

// Tx wraps a test in a transaction rolled back on cleanup so tests never
// see each other's rows.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func autoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.User{},
		&types.Group{},
		&types.Member{},
		&types.Post{},
		&types.JobRun{},
	); err != nil {
		return err
	}
	// The engine's cascade collection assumes these chains exist in DDL.
	for _, ddl := range []string{
		`ALTER TABLE "member" DROP CONSTRAINT IF EXISTS "fk_member_group_id"`,
		`ALTER TABLE "member" ADD CONSTRAINT "fk_member_group_id" FOREIGN KEY ("group_id") REFERENCES "group"("id") ON DELETE CASCADE`,
		`ALTER TABLE "post" DROP CONSTRAINT IF EXISTS "fk_post_group_id"`,
		`ALTER TABLE "post" ADD CONSTRAINT "fk_post_group_id" FOREIGN KEY ("group_id") REFERENCES "group"("id") ON DELETE CASCADE`,
		`ALTER TABLE "post" DROP CONSTRAINT IF EXISTS "fk_post_author_id"`,
		`ALTER TABLE "post" ADD CONSTRAINT "fk_post_author_id" FOREIGN KEY ("author_id") REFERENCES "member"("id") ON DELETE CASCADE`,
	} {
		if err := db.Exec(ddl).Error; err != nil {
			return err
		}
	}
	return nil
}
