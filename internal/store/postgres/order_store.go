package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Upsert inserts or updates a single order.
func (s *OrderStore) Upsert(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, market_id, owner, buy_yes, price, size,
			filled, cancelled, claimed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			filled     = EXCLUDED.filled,
			cancelled  = EXCLUDED.cancelled,
			claimed    = EXCLUDED.claimed,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.Owner, o.BuyYes, o.Price, o.Size,
		o.Filled, o.Cancelled, o.Claimed, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", o.ID, err)
	}
	return nil
}

const orderCols = `id, market_id, owner, buy_yes, price, size,
	filled, cancelled, claimed, created_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.MarketID, &o.Owner, &o.BuyYes, &o.Price, &o.Size,
		&o.Filled, &o.Cancelled, &o.Claimed, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// GetByID retrieves an order by its primary key.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByMarket returns a market's orders, oldest first.
func (s *OrderStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "market_id", marketID, opts)
}

// ListByOwner returns an owner's orders across markets, oldest first.
func (s *OrderStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "owner", owner, opts)
}

func (s *OrderStore) list(ctx context.Context, col, val string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders WHERE ` + col + ` = $1`
	args := []any{val}
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
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by %s: %w", col, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
