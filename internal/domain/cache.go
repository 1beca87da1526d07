package domain

import (
	"context"
	"time"
)

// BookSnapshot is a full snapshot of both sides of a market's resting book.
type BookSnapshot struct {
	MarketID  string
	YesLevels []BookLevel
	NoLevels  []BookLevel
	BestYes   int64 // 0 when no resting YES orders
	BestNo    int64 // 0 when no resting NO orders
	Timestamp time.Time
}

// BookCache stores live order-book state for fast reads.
type BookCache interface {
	SetSnapshot(ctx context.Context, marketID string, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, marketID string) (BookSnapshot, error)
	GetBest(ctx context.Context, marketID string) (bestYes, bestNo int64, err error)
	Invalidate(ctx context.Context, marketID string) error
}

// MarketInfoCache stores market read models for fast registry lookups.
type MarketInfoCache interface {
	Set(ctx context.Context, info MarketInfo) error
	Get(ctx context.Context, id string) (MarketInfo, error)
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides distributed single-flight locks.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for market events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
