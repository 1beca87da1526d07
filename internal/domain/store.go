package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market ledger snapshots.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// OrderStore persists limit orders.
type OrderStore interface {
	Upsert(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Order, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Order, error)
}

// FillStore persists matches between orders.
type FillStore interface {
	InsertBatch(ctx context.Context, fills []Fill) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Fill, error)
}

// PositionStore persists LP share and trader position snapshots.
type PositionStore interface {
	UpsertLiquidity(ctx context.Context, p LiquidityPosition) error
	UpsertTrader(ctx context.Context, p TraderPosition) error
	GetLiquidity(ctx context.Context, marketID, owner string) (LiquidityPosition, error)
	GetTrader(ctx context.Context, marketID, owner string) (TraderPosition, error)
	ListByOwner(ctx context.Context, owner string) ([]TraderPosition, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
