package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxConns is the connection pool bound referenced by the
// dispatcher design: large enough that ordinary batch traffic never
// blocks on a free connection, small enough to bound load on the
// upstream Postgres instance.
const DefaultMaxConns = 300

// backendTimeout bounds every read/write/acquire against Postgres so the
// dispatcher is never blocked indefinitely by a slow or wedged database,
// per the concurrency model's "bounded by an implementation-chosen
// timeout" rule.
const backendTimeout = 2 * time.Second

// PostgresBackend is the pooled remote cache implementation: a single
// table with last-accessed-at bookkeeping (used by the cleanup manager),
// namespaced per chain id so one database can serve multiple chains.
type PostgresBackend struct {
	pool    *pgxpool.Pool
	chainID string
}

// NewPostgresBackend connects to dsn, bounding the pool at DefaultMaxConns
// unless the DSN itself specifies pool_max_conns, and ensures the cache
// table exists.
func NewPostgresBackend(ctx context.Context, dsn string, chainID string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to parse database dsn: %w", err)
	}
	// ParseConfig always fills MaxConns with its own small default, so the
	// DSN text is checked to see whether the caller chose a bound.
	if !strings.Contains(dsn, "pool_max_conns") {
		cfg.MaxConns = DefaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: failed to ping database: %w", err)
	}

	b := &PostgresBackend{pool: pool, chainID: chainID}
	if err := b.init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: failed to init schema: %w", err)
	}
	return b, nil
}

func (b *PostgresBackend) init(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rpc_cache (
			key TEXT PRIMARY KEY,
			chain_id TEXT NOT NULL,
			method TEXT NOT NULL,
			response BYTEA NOT NULL,
			result_length BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_accessed_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS rpc_cache_chain_id_idx ON rpc_cache (chain_id)`)
	return err
}

// Close releases the pool. Safe to call once at process shutdown.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

func (b *PostgresBackend) namespacedKey(method, key string) string {
	return b.chainID + ":" + method + ":" + key
}

// Instance borrows a pooled connection. Acquisition may fail under pool
// exhaustion or a network error; per spec, that failure degrades the
// caller's response to "uncached passthrough" everywhere except the
// classification phase's initial acquire, which fails the whole batch.
func (b *PostgresBackend) Instance(ctx context.Context) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	conn, err := b.pool.Acquire(ctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("cache: failed to acquire pooled connection: %w", err)
	}
	return &postgresHandle{backend: b, conn: conn}, nil
}

type postgresHandle struct {
	backend *PostgresBackend
	conn    *pgxpool.Conn
}

func (h *postgresHandle) Read(ctx context.Context, method, key string) (ReadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	namespaced := h.backend.namespacedKey(method, key)
	var value []byte
	err := h.conn.QueryRow(ctx, `
		UPDATE rpc_cache
		SET last_accessed_at = NOW()
		WHERE key = $1
		RETURNING response
	`, namespaced).Scan(&value)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReadResult{Key: namespaced, Hit: false}, nil
		}
		return ReadResult{}, fmt.Errorf("cache: read failed: %w", err)
	}
	return ReadResult{Key: namespaced, Value: value, Hit: true}, nil
}

func (h *postgresHandle) Write(ctx context.Context, method, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	namespaced := h.backend.namespacedKey(method, key)
	_, err := h.conn.Exec(ctx, `
		INSERT INTO rpc_cache (key, chain_id, method, response, result_length, created_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET response = $4, result_length = $5, last_accessed_at = NOW()
	`, namespaced, h.backend.chainID, method, value, len(value))
	if err != nil {
		return fmt.Errorf("cache: write failed: %w", err)
	}
	return nil
}

func (h *postgresHandle) Close() {
	h.conn.Release()
}

// SizeBytes sums the stored-result bytes plus a fixed per-row overhead for
// this backend's chain only, the same accounting the cleanup manager
// budgets against. A shared database serving several chains must never
// let one chain's size computation see another's rows.
func (b *PostgresBackend) SizeBytes(ctx context.Context) (int64, error) {
	var size int64
	err := b.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(result_length + 64), 0) FROM rpc_cache WHERE chain_id = $1`,
		b.chainID).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("cache: failed to compute cache size: %w", err)
	}
	return size, nil
}

// ItemCount reports the number of cached rows for this backend's chain,
// for the items-count gauge.
func (b *PostgresBackend) ItemCount(ctx context.Context) (int64, error) {
	var count int64
	err := b.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rpc_cache WHERE chain_id = $1`, b.chainID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cache: failed to count cache rows: %w", err)
	}
	return count, nil
}

// Prune deletes this backend's chain's least-recently-accessed rows until
// bytesToFree have been freed (or its rows are exhausted), returning the
// bytes actually freed. Scoped to chain_id so one chain's cleanup budget
// can never evict another chain's entries out of a shared database.
func (b *PostgresBackend) Prune(ctx context.Context, bytesToFree int64) (int64, error) {
	var freed int64
	err := b.pool.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM rpc_cache
			WHERE key IN (
				SELECT key
				FROM (
					SELECT key, result_length + 64 AS item_size,
						SUM(result_length + 64) OVER (ORDER BY last_accessed_at ASC, result_length DESC) AS running_total
					FROM rpc_cache
					WHERE chain_id = $2
				) ranked
				WHERE running_total - item_size < $1
			)
			RETURNING result_length
		)
		SELECT COALESCE(SUM(result_length + 64), 0) FROM deleted
	`, bytesToFree, b.chainID).Scan(&freed)
	if err != nil {
		return 0, fmt.Errorf("cache: failed to prune cache: %w", err)
	}
	return freed, nil
}
