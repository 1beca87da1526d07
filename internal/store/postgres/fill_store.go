package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// InsertBatch inserts multiple fills in a single batch operation. Fills are
// immutable, so a conflicting id is skipped rather than updated.
func (s *FillStore) InsertBatch(ctx context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fills (
			id, market_id, yes_order_id, no_order_id,
			yes_price, no_price, amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	for _, f := range fills {
		batch.Queue(query,
			f.ID, f.MarketID, f.YesOrderID, f.NoOrderID,
			f.YesPrice, f.NoPrice, f.Amount, f.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByMarket returns a market's fills, oldest first.
func (s *FillStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `SELECT id, market_id, yes_order_id, no_order_id,
		yes_price, no_price, amount, created_at
		FROM fills WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(
			&f.ID, &f.MarketID, &f.YesOrderID, &f.NoOrderID,
			&f.YesPrice, &f.NoPrice, &f.Amount, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fills rows: %w", err)
	}
	return fills, nil
}

var _ domain.FillStore = (*FillStore)(nil)
