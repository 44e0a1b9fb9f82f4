package checkpoint

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the `local_durable` checkpointer variant from spec
// §4.2: embedded-in-deployment Postgres, write-ahead durability via the
// database's own WAL, one row per (thread_id, checkpoint_id). Each write
// is a single atomic statement; no per-thread lock is taken.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, runs pending migrations, and returns
// a ready Store. The caller owns calling Close when done.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkpoint: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// migrateURL rewrites a pgx-style DSN to the scheme golang-migrate's
// pgx/v5 database driver registers itself under.
func migrateURL(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(dsn, "postgres://")
	}
	if strings.HasPrefix(dsn, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(dsn, "postgresql://")
	}
	return dsn
}

// Put inserts a new checkpoint row for threadID in one INSERT ... ON
// CONFLICT statement; a Put that reuses an existing (threadID,
// checkpointID) overwrites that row. Concurrent Puts for the same
// thread_id each apply atomically and are ordered only by created_at.
func (p *PostgresStore) Put(ctx context.Context, threadID, checkpointID string, snapshot *state.RunState, meta Meta) error {
	if checkpointID == "" {
		checkpointID = uuid.NewString()
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal snapshot: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO checkpoints (thread_id, checkpoint_id, node, created_at, snapshot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id, checkpoint_id) DO UPDATE
		SET node = EXCLUDED.node, created_at = EXCLUDED.created_at, snapshot = EXCLUDED.snapshot
	`, threadID, checkpointID, meta.Node, timeOrNow(meta.CreatedAt), body)
	return err
}

// Get returns the snapshot for checkpointID, or the newest row for
// threadID if checkpointID is empty.
func (p *PostgresStore) Get(ctx context.Context, threadID, checkpointID string) (*state.RunState, Meta, error) {
	var (
		row  pgxRow
		body []byte
	)

	if checkpointID == "" {
		err := p.pool.QueryRow(ctx, `
			SELECT checkpoint_id, node, created_at, snapshot FROM checkpoints
			WHERE thread_id = $1 ORDER BY created_at DESC LIMIT 1
		`, threadID).Scan(&row.CheckpointID, &row.Node, &row.CreatedAt, &body)
		if err != nil {
			return nil, Meta{}, translateNotFound(err)
		}
	} else {
		err := p.pool.QueryRow(ctx, `
			SELECT checkpoint_id, node, created_at, snapshot FROM checkpoints
			WHERE thread_id = $1 AND checkpoint_id = $2
		`, threadID, checkpointID).Scan(&row.CheckpointID, &row.Node, &row.CreatedAt, &body)
		if err != nil {
			return nil, Meta{}, translateNotFound(err)
		}
	}

	var snap state.RunState
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: unmarshal snapshot: %w", err)
	}
	return &snap, Meta{CheckpointID: row.CheckpointID, Node: row.Node, CreatedAt: row.CreatedAt}, nil
}

// List returns every checkpoint's metadata for threadID, newest first.
func (p *PostgresStore) List(ctx context.Context, threadID string) ([]Meta, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT checkpoint_id, node, created_at FROM checkpoints
		WHERE thread_id = $1 ORDER BY created_at DESC
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.CheckpointID, &m.Node, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes every checkpoint row for threadID.
func (p *PostgresStore) Delete(ctx context.Context, threadID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	return err
}

// Close releases the connection pool.
func (p *PostgresStore) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

type pgxRow struct {
	CheckpointID string
	Node         string
	CreatedAt    time.Time
}

func translateNotFound(err error) error {
	if err.Error() == "no rows in result set" {
		return ErrNotFound
	}
	return err
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
