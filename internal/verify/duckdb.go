package verify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

// Config holds DuckDB settings for verification queries.
type Config struct {
	MemoryLimit string
	ThreadCount int
}

// duckDB is an in-memory DuckDB connection.
type duckDB struct {
	db     *sql.DB
	logger zerolog.Logger
}

func openDuckDB(cfg Config, logger zerolog.Logger) (*duckDB, error) {
	// In-memory database - settings applied via configure()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	if err := configure(db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure duckdb: %w", err)
	}

	return &duckDB{db: db, logger: logger}, nil
}

// configure sets DuckDB settings after connection
func configure(db *sql.DB, cfg Config) error {
	if cfg.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", escapeSQLString(cfg.MemoryLimit))); err != nil {
			return fmt.Errorf("failed to set memory_limit: %w", err)
		}
	}
	if cfg.ThreadCount > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET threads=%d", cfg.ThreadCount)); err != nil {
			return fmt.Errorf("failed to set threads: %w", err)
		}
	}
	return nil
}

// queryRow runs a single-row query and scans it into dest.
func (d *duckDB) queryRow(ctx context.Context, query string, dest ...any) error {
	start := time.Now()
	err := d.db.QueryRowContext(ctx, query).Scan(dest...)
	elapsed := time.Since(start)

	if err != nil {
		d.logger.Error().
			Err(err).
			Str("query", query).
			Dur("elapsed", elapsed).
			Msg("Query failed")
		return fmt.Errorf("query failed: %w", err)
	}

	d.logger.Debug().
		Str("query", query).
		Dur("elapsed", elapsed).
		Msg("Query executed")
	return nil
}

func (d *duckDB) close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteIdent quotes a column name for DuckDB.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
