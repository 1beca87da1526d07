package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a single market ledger snapshot.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, creator, oracle,
			reserve_yes, reserve_no, total_shares_yes, total_shares_no,
			total_deposited, total_paid_out,
			expiry, settled, outcome_yes, created_at, settled_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10,
			$11, $12, $13, $14, $15, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			reserve_yes      = EXCLUDED.reserve_yes,
			reserve_no       = EXCLUDED.reserve_no,
			total_shares_yes = EXCLUDED.total_shares_yes,
			total_shares_no  = EXCLUDED.total_shares_no,
			total_deposited  = EXCLUDED.total_deposited,
			total_paid_out   = EXCLUDED.total_paid_out,
			settled          = EXCLUDED.settled,
			outcome_yes      = EXCLUDED.outcome_yes,
			settled_at       = EXCLUDED.settled_at,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Creator, m.Oracle,
		m.ReserveYes, m.ReserveNo, m.TotalSharesYes, m.TotalSharesNo,
		m.TotalDeposited, m.TotalPaidOut,
		m.Expiry, m.Settled, m.OutcomeYes, m.CreatedAt, m.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

const marketCols = `id, question, creator, oracle,
	reserve_yes, reserve_no, total_shares_yes, total_shares_no,
	total_deposited, total_paid_out,
	expiry, settled, outcome_yes, created_at, settled_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ID, &m.Question, &m.Creator, &m.Oracle,
		&m.ReserveYes, &m.ReserveNo, &m.TotalSharesYes, &m.TotalSharesNo,
		&m.TotalDeposited, &m.TotalPaidOut,
		&m.Expiry, &m.Settled, &m.OutcomeYes, &m.CreatedAt, &m.SettledAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListOpen returns unsettled markets with pagination and optional time
// filtering.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE settled = FALSE`
	args := []any{}
	argIdx := 1

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

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryMarkets(ctx, query, args...)
}

// ListSettledBefore returns markets settled at or before the given time,
// oldest first. The archiver drains this list.
func (s *MarketStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE settled = TRUE AND settled_at <= $1
		ORDER BY settled_at ASC`
	return s.queryMarkets(ctx, query, before)
}

func (s *MarketStore) queryMarkets(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
