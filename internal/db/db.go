package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/envutil"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// Service owns the database handle. DB_DRIVER selects postgres (default) or
// sqlite for local development; both schemas carry the ON DELETE CASCADE
// chains the rollup engine's hard-delete collection depends on.
type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func New(baseLog *logger.Logger) (*Service, error) {
	serviceLog := baseLog.With("service", "DBService")
	driver := strings.ToLower(envutil.String("DB_DRIVER", "postgres"))

	var (
		db  *gorm.DB
		err error
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Warn),
	}
	switch driver {
	case "sqlite":
		// _fk=1 turns PRAGMA foreign_keys on for every connection the
		// pool opens; without it the cascade DDL is inert.
		path := envutil.String("SQLITE_PATH", "rollup.db")
		db, err = gorm.Open(sqlite.Open(path+"?_fk=1"), cfg)
	case "postgres":
		dsn := envutil.String("POSTGRES_DSN", "")
		if dsn == "" {
			host := envutil.String("POSTGRES_HOST", "localhost")
			port := envutil.String("POSTGRES_PORT", "5432")
			user := envutil.String("POSTGRES_USER", "postgres")
			password := envutil.String("POSTGRES_PASSWORD", "")
			name := envutil.String("POSTGRES_NAME", "rollup")
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		}
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
		}
	}

	serviceLog.Info("database connected", "driver", driver)
	return &Service{db: db, driver: driver, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Driver() string { return s.driver }

// Migrate creates the schema and wires the ON DELETE CASCADE chains the
// rollup engine's cascade collection assumes: group -> member -> post.
func (s *Service) Migrate() error {
	s.log.Info("migrating tables")
	if s.driver == "sqlite" {
		return s.migrateSQLite()
	}
	if err := s.db.AutoMigrate(
		&types.User{},
		&types.Group{},
		&types.Member{},
		&types.Post{},
		&types.JobRun{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	for _, ddl := range []struct {
		name string
		sql  string
	}{
		{
			name: "fk_member_group_id",
			sql: `ALTER TABLE "member"
				ADD CONSTRAINT "fk_member_group_id"
				FOREIGN KEY ("group_id") REFERENCES "group"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_post_group_id",
			sql: `ALTER TABLE "post"
				ADD CONSTRAINT "fk_post_group_id"
				FOREIGN KEY ("group_id") REFERENCES "group"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_post_author_id",
			sql: `ALTER TABLE "post"
				ADD CONSTRAINT "fk_post_author_id"
				FOREIGN KEY ("author_id") REFERENCES "member"("id")
				ON DELETE CASCADE`,
		},
	} {
		var n int64
		err := s.db.Raw(
			`SELECT COUNT(*) FROM information_schema.table_constraints WHERE constraint_name = ?`,
			ddl.name,
		).Scan(&n).Error
		if err != nil {
			return fmt.Errorf("check %s: %w", ddl.name, err)
		}
		if n > 0 {
			continue
		}
		if err := s.db.Exec(ddl.sql).Error; err != nil {
			return fmt.Errorf("add %s: %w", ddl.name, err)
		}
	}
	return nil
}

// migrateSQLite writes the schema by hand: sqlite cannot attach a foreign
// key to an existing table, so AutoMigrate would leave the cascade chains
// out and a hard group delete would orphan its children while the engine
// adjusted for them. IDs are assigned by the repos, so no column defaults
// lean on uuid_generate_v4 here.
func (s *Service) migrateSQLite() error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS "user" (
			id text PRIMARY KEY,
			email text NOT NULL UNIQUE,
			password text NOT NULL,
			display_name text,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
		`CREATE TABLE IF NOT EXISTS "group" (
			id text PRIMARY KEY,
			owner_user_id text,
			name text NOT NULL,
			members_count integer NOT NULL DEFAULT 0,
			points_sum integer NOT NULL DEFAULT 0,
			posts_count integer NOT NULL DEFAULT 0,
			metadata text,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
		`CREATE TABLE IF NOT EXISTS "member" (
			id text PRIMARY KEY,
			group_id text REFERENCES "group"(id) ON DELETE CASCADE,
			display_name text NOT NULL,
			active boolean NOT NULL DEFAULT true,
			points integer NOT NULL DEFAULT 0,
			posts_count integer NOT NULL DEFAULT 0,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
		`CREATE TABLE IF NOT EXISTS "post" (
			id text PRIMARY KEY,
			group_id text REFERENCES "group"(id) ON DELETE CASCADE,
			author_id text REFERENCES "member"(id) ON DELETE CASCADE,
			title text NOT NULL,
			body text,
			visible boolean NOT NULL DEFAULT true,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
		`CREATE TABLE IF NOT EXISTS "job_run" (
			id text PRIMARY KEY,
			owner_user_id text NOT NULL,
			job_type text NOT NULL,
			entity_type text,
			entity_id text,
			status text NOT NULL,
			attempts integer NOT NULL DEFAULT 0,
			error text,
			locked_at datetime,
			heartbeat_at datetime,
			last_error_at datetime,
			payload text,
			result text,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
	} {
		if err := s.db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("create sqlite schema: %w", err)
		}
	}
	return nil
}
