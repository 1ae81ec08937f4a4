// Package catalog records completed ragged array builds in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Get for an unknown build ID.
var ErrNotFound = errors.New("build not found")

// timeLayout keeps created_at fixed-width so it sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Build is one completed build.
type Build struct {
	ID           string
	CreatedAt    time.Time
	Trajectories int
	Observations int64
	Skipped      int64
	Policy       string
	Sources      []string
	Outputs      []string // URIs of the written archives
	Elapsed      time.Duration
}

// Catalog persists builds.
type Catalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the catalog database at dbPath.
func Open(dbPath string, logger zerolog.Logger) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connections for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Catalog{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}

	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return c, nil
}

func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		trajectories INTEGER NOT NULL,
		observations INTEGER NOT NULL,
		skipped INTEGER DEFAULT 0,
		policy TEXT DEFAULT 'fail',
		sources TEXT NOT NULL,
		outputs TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record stores b, assigning an ID and creation time when unset.
func (c *Catalog) Record(ctx context.Context, b *Build) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	sources, err := json.Marshal(nonNil(b.Sources))
	if err != nil {
		return fmt.Errorf("failed to serialize sources: %w", err)
	}
	outputs, err := json.Marshal(nonNil(b.Outputs))
	if err != nil {
		return fmt.Errorf("failed to serialize outputs: %w", err)
	}

	query := `
	INSERT INTO builds (
		id, created_at, trajectories, observations, skipped, policy,
		sources, outputs, elapsed_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = c.db.ExecContext(ctx, query,
		b.ID, b.CreatedAt.UTC().Format(timeLayout), b.Trajectories, b.Observations,
		b.Skipped, b.Policy, string(sources), string(outputs), b.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}

	c.logger.Debug().Str("id", b.ID).Int("trajectories", b.Trajectories).Msg("Build recorded")
	return nil
}

const selectBuild = `
	SELECT id, created_at, trajectories, observations, skipped, policy,
		sources, outputs, elapsed_ms
	FROM builds
`

// Get returns the build with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (*Build, error) {
	b, err := scanBuild(c.db.QueryRowContext(ctx, selectBuild+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, err
}

// List returns the most recent builds first. limit <= 0 returns all.
func (c *Catalog) List(ctx context.Context, limit int) ([]*Build, error) {
	query := selectBuild + " ORDER BY created_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}
	return builds, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (*Build, error) {
	var (
		b                Build
		created          string
		sources, outputs string
		elapsedMS        int64
		policy           sql.NullString
	)
	err := row.Scan(&b.ID, &created, &b.Trajectories, &b.Observations, &b.Skipped, &policy,
		&sources, &outputs, &elapsedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan build: %w", err)
	}

	b.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	if err := json.Unmarshal([]byte(sources), &b.Sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources: %w", err)
	}
	if err := json.Unmarshal([]byte(outputs), &b.Outputs); err != nil {
		return nil, fmt.Errorf("failed to parse outputs: %w", err)
	}
	b.Policy = policy.String
	b.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
