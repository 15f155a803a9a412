package catalogdb

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/mantonx/liveset-cataloger/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PoolConfig tunes the underlying *sql.DB connection pool. Defaults are
// conservative for sqlite (single-writer file) and generous for postgres.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// OptimalPoolConfig returns per-backend tuned defaults.
func OptimalPoolConfig(dbType string) PoolConfig {
	switch dbType {
	case "postgres":
		return PoolConfig{MaxOpenConns: 100, MaxIdleConns: 20, ConnMaxLifetime: 2 * time.Hour, ConnMaxIdleTime: 30 * time.Minute}
	default: // sqlite
		return PoolConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 10 * time.Minute}
	}
}

// Open connects to the catalog database, configures the pool, and runs
// migrations including the FTS5 virtual table. dbType is "sqlite" or
// "postgres"; dsnOrPath is a path for sqlite, a connection string for
// postgres.
func Open(dbType, dsnOrPath string) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		CreateBatchSize:        200,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}

	var db *gorm.DB
	var err error

	switch dbType {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsnOrPath), gcfg)
	default:
		dsn := sqliteDSN(dsnOrPath)
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dbType, err)
	}

	pool := OptimalPoolConfig(dbType)
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s database: %w", dbType, err)
	}

	if err := migrate(db, dbType); err != nil {
		return nil, err
	}

	logger.Info("catalog database ready", "type", dbType, "max_open_conns", pool.MaxOpenConns)
	return db, nil
}

// memDBSeq numbers in-memory databases so each Open(":memory:") gets its own.
var memDBSeq atomic.Uint64

// sqliteDSN builds a DSN carrying the pragmas the single-writer catalog
// relies on: WAL mode, a generous busy timeout, and foreign keys enforced.
// ":memory:" maps to a named in-memory database that the pool's connections
// share but that no other Open call sees.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return fmt.Sprintf("file:catalogmem%d?mode=memory&cache=shared&_foreign_keys=ON", memDBSeq.Add(1))
	}
	return fmt.Sprintf(
		"%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=ON",
		path,
	)
}

func migrate(db *gorm.DB, dbType string) error {
	if err := db.AutoMigrate(
		&Project{}, &Plugin{}, &Sample{}, &Tag{}, &Collection{},
		&CollectionProject{}, &Task{}, &MediaFile{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	if dbType == "postgres" {
		// No projects_fts table is created on postgres. The catalog
		// package's statements against projects_fts (operator search and
		// the FTS row maintenance in upsert, rename and tag changes) have
		// no postgres variant.
		return nil
	}

	// FTS5 virtual table: one row per active project, denormalized text
	// columns for each search-grammar operator target.
	stmt := `CREATE VIRTUAL TABLE IF NOT EXISTS projects_fts USING fts5(
		project_id UNINDEXED,
		name, path, plugins, samples, tags, notes,
		created_at_text, modified_at_text, tempo_text,
		key_signature_text, time_signature_text, version_text, duration_text
	);`
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create fts5 table: %w", err)
	}
	return nil
}

// DefaultSQLitePath derives the catalog path from a data directory,
// creating the directory if needed.
func DefaultSQLitePath(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	return dataDir + "/catalog.db", nil
}
