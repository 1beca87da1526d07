package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection
// pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// UpsertLiquidity inserts or updates an owner's LP share snapshot.
func (s *PositionStore) UpsertLiquidity(ctx context.Context, p domain.LiquidityPosition) error {
	const query = `
		INSERT INTO liquidity_positions (market_id, owner, shares_yes, shares_no, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (market_id, owner) DO UPDATE SET
			shares_yes = EXCLUDED.shares_yes,
			shares_no  = EXCLUDED.shares_no,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, p.MarketID, p.Owner, p.SharesYes, p.SharesNo)
	if err != nil {
		return fmt.Errorf("postgres: upsert liquidity position %s/%s: %w", p.MarketID, p.Owner, err)
	}
	return nil
}

// UpsertTrader inserts or updates an owner's outcome position snapshot.
func (s *PositionStore) UpsertTrader(ctx context.Context, p domain.TraderPosition) error {
	const query = `
		INSERT INTO trader_positions (market_id, owner, position_yes, position_no, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (market_id, owner) DO UPDATE SET
			position_yes = EXCLUDED.position_yes,
			position_no  = EXCLUDED.position_no,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query, p.MarketID, p.Owner, p.PositionYes, p.PositionNo)
	if err != nil {
		return fmt.Errorf("postgres: upsert trader position %s/%s: %w", p.MarketID, p.Owner, err)
	}
	return nil
}

// GetLiquidity retrieves an owner's LP share snapshot in a market.
func (s *PositionStore) GetLiquidity(ctx context.Context, marketID, owner string) (domain.LiquidityPosition, error) {
	var p domain.LiquidityPosition
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, owner, shares_yes, shares_no
		 FROM liquidity_positions WHERE market_id = $1 AND owner = $2`,
		marketID, owner,
	).Scan(&p.MarketID, &p.Owner, &p.SharesYes, &p.SharesNo)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.LiquidityPosition{}, domain.ErrNotFound
		}
		return domain.LiquidityPosition{}, fmt.Errorf("postgres: get liquidity position %s/%s: %w", marketID, owner, err)
	}
	return p, nil
}

// GetTrader retrieves an owner's outcome position snapshot in a market.
func (s *PositionStore) GetTrader(ctx context.Context, marketID, owner string) (domain.TraderPosition, error) {
	var p domain.TraderPosition
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, owner, position_yes, position_no
		 FROM trader_positions WHERE market_id = $1 AND owner = $2`,
		marketID, owner,
	).Scan(&p.MarketID, &p.Owner, &p.PositionYes, &p.PositionNo)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TraderPosition{}, domain.ErrNotFound
		}
		return domain.TraderPosition{}, fmt.Errorf("postgres: get trader position %s/%s: %w", marketID, owner, err)
	}
	return p, nil
}

// ListByOwner returns all of an owner's outcome positions across markets.
func (s *PositionStore) ListByOwner(ctx context.Context, owner string) ([]domain.TraderPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, owner, position_yes, position_no
		 FROM trader_positions WHERE owner = $1 ORDER BY market_id`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by owner %s: %w", owner, err)
	}
	defer rows.Close()

	var positions []domain.TraderPosition
	for rows.Next() {
		var p domain.TraderPosition
		if err := rows.Scan(&p.MarketID, &p.Owner, &p.PositionYes, &p.PositionNo); err != nil {
			return nil, fmt.Errorf("postgres: scan trader position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
