package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// BookCache implements domain.BookCache using Redis sorted sets and hashes
// for each market's resting order book.
//
// Key schema:
//
//	book:{marketID}:yes      - sorted set of YES price levels (score = price)
//	book:{marketID}:no       - sorted set of NO price levels (score = price)
//	book:{marketID}:yes:size - hash mapping price -> resting size for YES
//	book:{marketID}:no:size  - hash mapping price -> resting size for NO
//	book:{marketID}:best     - hash with fields "yes" and "no" (best bids)
//	book:{marketID}:meta     - hash with "ts" field (snapshot timestamp)
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookYesKey(marketID string) string     { return "book:" + marketID + ":yes" }
func bookNoKey(marketID string) string      { return "book:" + marketID + ":no" }
func bookYesSizeKey(marketID string) string { return "book:" + marketID + ":yes:size" }
func bookNoSizeKey(marketID string) string  { return "book:" + marketID + ":no:size" }
func bookBestKey(marketID string) string    { return "book:" + marketID + ":best" }
func bookMetaKey(marketID string) string    { return "book:" + marketID + ":meta" }

// SetSnapshot atomically replaces the entire book snapshot for a market.
// It clears existing data and repopulates both sides' sorted sets, size
// hashes, the best-bid hash, and the metadata hash.
func (bc *BookCache) SetSnapshot(ctx context.Context, marketID string, snap domain.BookSnapshot) error {
	yesKey := bookYesKey(marketID)
	noKey := bookNoKey(marketID)
	yesSizeKey := bookYesSizeKey(marketID)
	noSizeKey := bookNoSizeKey(marketID)
	bestKey := bookBestKey(marketID)
	metaKey := bookMetaKey(marketID)

	pipe := bc.rdb.TxPipeline()

	// Clear existing keys.
	pipe.Del(ctx, yesKey, noKey, yesSizeKey, noSizeKey, bestKey, metaKey)

	for _, lvl := range snap.YesLevels {
		priceStr := strconv.FormatInt(lvl.Price, 10)
		pipe.ZAdd(ctx, yesKey, redis.Z{Score: float64(lvl.Price), Member: priceStr})
		pipe.HSet(ctx, yesSizeKey, priceStr, strconv.FormatInt(lvl.Size, 10))
	}
	for _, lvl := range snap.NoLevels {
		priceStr := strconv.FormatInt(lvl.Price, 10)
		pipe.ZAdd(ctx, noKey, redis.Z{Score: float64(lvl.Price), Member: priceStr})
		pipe.HSet(ctx, noSizeKey, priceStr, strconv.FormatInt(lvl.Size, 10))
	}

	if snap.BestYes > 0 {
		pipe.HSet(ctx, bestKey, "yes", strconv.FormatInt(snap.BestYes, 10))
	}
	if snap.BestNo > 0 {
		pipe.HSet(ctx, bestKey, "no", strconv.FormatInt(snap.BestNo, 10))
	}

	pipe.HSet(ctx, metaKey, "ts", strconv.FormatInt(snap.Timestamp.UnixNano(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book snapshot %s: %w", marketID, err)
	}
	return nil
}

// GetSnapshot reconstructs a full BookSnapshot from Redis.
// It returns domain.ErrNotFound if no snapshot data exists for the market.
func (bc *BookCache) GetSnapshot(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	pipe := bc.rdb.Pipeline()

	// Levels are served price-descending for display.
	yesCmd := pipe.ZRevRangeWithScores(ctx, bookYesKey(marketID), 0, -1)
	noCmd := pipe.ZRevRangeWithScores(ctx, bookNoKey(marketID), 0, -1)
	yesSizeCmd := pipe.HGetAll(ctx, bookYesSizeKey(marketID))
	noSizeCmd := pipe.HGetAll(ctx, bookNoSizeKey(marketID))
	bestCmd := pipe.HGetAll(ctx, bookBestKey(marketID))
	metaCmd := pipe.HGetAll(ctx, bookMetaKey(marketID))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book snapshot %s: %w", marketID, err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.BookSnapshot{MarketID: marketID}

	if tsStr, ok := metaVals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			snap.Timestamp = time.Unix(0, tsNano)
		}
	}

	snap.YesLevels = buildLevels(yesCmd, yesSizeCmd)
	snap.NoLevels = buildLevels(noCmd, noSizeCmd)

	bestVals, _ := bestCmd.Result()
	if yesStr, ok := bestVals["yes"]; ok {
		snap.BestYes, _ = strconv.ParseInt(yesStr, 10, 64)
	}
	if noStr, ok := bestVals["no"]; ok {
		snap.BestNo, _ = strconv.ParseInt(noStr, 10, 64)
	}

	return snap, nil
}

// buildLevels zips a sorted-set range with its size hash into book levels.
func buildLevels(zCmd *redis.ZSliceCmd, sizeCmd *redis.MapStringStringCmd) []domain.BookLevel {
	sizes, _ := sizeCmd.Result()
	zs, _ := zCmd.Result()
	levels := make([]domain.BookLevel, 0, len(zs))
	for _, z := range zs {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		var size int64
		if sizeStr, exists := sizes[priceStr]; exists {
			size, _ = strconv.ParseInt(sizeStr, 10, 64)
		}
		levels = append(levels, domain.BookLevel{
			Price: int64(z.Score),
			Size:  size,
		})
	}
	return levels
}

// GetBest retrieves the current best resting bid per side from the best hash.
// A missing side reports as zero; it returns domain.ErrNotFound when the
// market has no cached book at all.
func (bc *BookCache) GetBest(ctx context.Context, marketID string) (bestYes, bestNo int64, err error) {
	vals, err := bc.rdb.HGetAll(ctx, bookBestKey(marketID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get best %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return 0, 0, domain.ErrNotFound
	}

	if yesStr, ok := vals["yes"]; ok {
		bestYes, _ = strconv.ParseInt(yesStr, 10, 64)
	}
	if noStr, ok := vals["no"]; ok {
		bestNo, _ = strconv.ParseInt(noStr, 10, 64)
	}
	return bestYes, bestNo, nil
}

// Invalidate removes all cached book state for a market.
func (bc *BookCache) Invalidate(ctx context.Context, marketID string) error {
	err := bc.rdb.Del(ctx,
		bookYesKey(marketID), bookNoKey(marketID),
		bookYesSizeKey(marketID), bookNoSizeKey(marketID),
		bookBestKey(marketID), bookMetaKey(marketID),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: invalidate book %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
