package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"storefront-orders/config"
)

//go:embed migrations
var migrations embed.FS

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// TimestampLayout is the fixed-width form timestamps are written in, so
// that ordering by the column is chronological under either driver.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Open builds a connection pool for the configured driver and verifies it
// with a ping. The caller owns the returned pool and must Close it.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case DriverMySQL:
		return openMySQL(ctx, cfg)
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.DBPath)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.DBDriver)
	}
}

func openMySQL(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 5 * time.Second
	// RowsAffected must count matched rows for status updates to detect a missing order.
	mc.ClientFoundRows = true

	db, err := sql.Open(DriverMySQL, mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("database: open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping mysql %s: %w", mc.Addr, err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) the SQLite database at path.
func OpenSQLite(ctx context.Context, dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open sqlite %q: %w", dbPath, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping sqlite %q: %w", dbPath, err)
	}
	return db, nil
}

// Migrate applies the embedded schema files for driver in lexical order,
// skipping versions already recorded in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at VARCHAR(32)  NOT NULL
	)`); err != nil {
		return fmt.Errorf("database: create schema_migrations: %w", err)
	}

	dir := path.Join("migrations", driver)
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return fmt.Errorf("database: no migrations for driver %q: %w", driver, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		applied, err := isApplied(ctx, db, file)
		if err != nil {
			return err
		}
		if applied {
			slog.Debug("skipping applied migration", "file", file)
			continue
		}

		content, err := migrations.ReadFile(path.Join(dir, file))
		if err != nil {
			return fmt.Errorf("database: read migration %s: %w", file, err)
		}
		slog.Info("applying migration", "file", file, "driver", driver)
		if err := applyMigration(ctx, db, file, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	// MySQL DDL commits implicitly; statements run one at a time so a
	// failure reports the offending statement.
	for _, stmt := range splitStatements(content) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("database: migration %s: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		version, time.Now().UTC().Format(TimestampLayout),
	); err != nil {
		return fmt.Errorf("database: record migration %s: %w", version, err)
	}
	return tx.Commit()
}

func isApplied(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, version).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("database: check migration %s: %w", version, err)
	}
	return true, nil
}

func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
