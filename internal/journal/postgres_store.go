package journal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists entries in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS redemption_journal (
    tx_hash TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    collateral_index BIGINT NOT NULL,
    amount TEXT NOT NULL DEFAULT '',
    block BIGINT NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Put(ctx context.Context, entry Entry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO redemption_journal (tx_hash, kind, collateral_index, amount, block, status, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tx_hash) DO UPDATE
SET status = EXCLUDED.status,
    error = EXCLUDED.error,
    block = EXCLUDED.block,
    updated_at = EXCLUDED.updated_at
`, entry.TxHash, string(entry.Kind), int64(entry.CollateralIndex), entry.Amount, int64(entry.Block),
		string(entry.Status), entry.Error, entry.CreatedAt, now)
	return err
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
SELECT tx_hash, kind, collateral_index, amount, block, status, error, created_at, updated_at
FROM redemption_journal
ORDER BY created_at DESC, tx_hash
`
	args := []interface{}{}
	if limit > 0 {
		query += "LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e               Entry
			kind, status    string
			collateral, blk int64
		)
		if err := rows.Scan(&e.TxHash, &kind, &collateral, &e.Amount, &blk, &status, &e.Error, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Status = Status(status)
		e.CollateralIndex = uint64(collateral)
		e.Block = uint64(blk)
		out = append(out, e)
	}
	return out, rows.Err()
}
