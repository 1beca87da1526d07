package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketcore/internal/auction"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/launch"
	"github.com/alanyoungcy/marketcore/internal/market"
	"github.com/alanyoungcy/marketcore/internal/notify"
)

// SeedService fronts the two market-seeding collaborators: sealed-bid auctions
// and virtual-curve launches. Both create unseeded markets that only receive
// reserves once the seeding mechanism concludes.
type SeedService struct {
	auctions *auction.Engine
	launches *launch.Engine
	ledger   *market.Ledger
	markets  domain.MarketStore
	cache    domain.MarketInfoCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewSeedService creates a SeedService with all required dependencies.
func NewSeedService(
	auctions *auction.Engine,
	launches *launch.Engine,
	ledger *market.Ledger,
	markets domain.MarketStore,
	cache domain.MarketInfoCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *SeedService {
	return &SeedService{
		auctions: auctions,
		launches: launches,
		ledger:   ledger,
		markets:  markets,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

// OpenAuction creates an unseeded market with a commit-reveal auction over it.
func (s *SeedService) OpenAuction(ctx context.Context, creator, question, oracle string, commitWindow, revealWindow time.Duration, expiry time.Time) (auctionID, marketID string, err error) {
	auctionID, marketID, err = s.auctions.Open(creator, question, oracle, commitWindow, revealWindow, expiry)
	if err != nil {
		return "", "", fmt.Errorf("seed_service: open auction: %w", err)
	}

	s.syncMarket(ctx, marketID)
	s.auditLog(ctx, "auction.opened", map[string]any{
		"auction_id": auctionID,
		"market_id":  marketID,
		"creator":    creator,
	})
	s.publish(ctx, "auctions", map[string]string{
		"type":       "auction_opened",
		"auction_id": auctionID,
		"market_id":  marketID,
	})
	return auctionID, marketID, nil
}

// CommitBid escrows a sealed bid against the auction.
func (s *SeedService) CommitBid(ctx context.Context, bidder, auctionID string, hash [32]byte, deposit int64) error {
	if err := s.auctions.Commit(bidder, auctionID, hash, deposit); err != nil {
		return fmt.Errorf("seed_service: commit bid: %w", err)
	}
	s.auditLog(ctx, "auction.committed", map[string]any{
		"auction_id": auctionID,
		"bidder":     bidder,
		"deposit":    deposit,
	})
	return nil
}

// RevealBid opens a previously committed sealed bid.
func (s *SeedService) RevealBid(ctx context.Context, bidder, auctionID string, price int64, buyYes bool, salt []byte, amount int64) error {
	if err := s.auctions.Reveal(bidder, auctionID, price, buyYes, salt, amount); err != nil {
		return fmt.Errorf("seed_service: reveal bid: %w", err)
	}
	s.auditLog(ctx, "auction.revealed", map[string]any{
		"auction_id": auctionID,
		"bidder":     bidder,
	})
	return nil
}

// FinalizeAuction clears the auction at the weighted-median price and seeds
// the market with the matched collateral.
func (s *SeedService) FinalizeAuction(ctx context.Context, auctionID string) (domain.AuctionResult, error) {
	result, err := s.auctions.Finalize(auctionID)
	if err != nil {
		return domain.AuctionResult{}, fmt.Errorf("seed_service: finalize auction: %w", err)
	}

	s.syncMarket(ctx, result.MarketID)
	s.auditLog(ctx, "auction.finalized", map[string]any{
		"auction_id":     auctionID,
		"market_id":      result.MarketID,
		"clearing_price": result.ClearingPrice,
		"seeded_yes":     result.SeededYes,
		"seeded_no":      result.SeededNo,
	})
	s.publish(ctx, "auctions", map[string]string{
		"type":       "auction_finalized",
		"auction_id": auctionID,
		"market_id":  result.MarketID,
	})
	if err := s.notifier.Notify(ctx, "auction_finalized", "Auction finalized",
		fmt.Sprintf("Auction %s cleared at %d with %d per side", auctionID, result.ClearingPrice, result.SeededYes)); err != nil {
		s.logger.WarnContext(ctx, "seed_service: notify failed",
			slog.String("error", err.Error()),
		)
	}
	return result, nil
}

// AuctionInfo returns the auction's state, market and windows.
func (s *SeedService) AuctionInfo(ctx context.Context, auctionID string) (domain.AuctionState, string, time.Time, time.Time, error) {
	state, marketID, commitEnd, revealEnd, err := s.auctions.Info(auctionID)
	if err != nil {
		return "", "", time.Time{}, time.Time{}, fmt.Errorf("seed_service: auction info: %w", err)
	}
	return state, marketID, commitEnd, revealEnd, nil
}

// AuctionResult returns the clearing result of a finalized auction.
func (s *SeedService) AuctionResult(ctx context.Context, auctionID string) (domain.AuctionResult, error) {
	result, err := s.auctions.Result(auctionID)
	if err != nil {
		return domain.AuctionResult{}, fmt.Errorf("seed_service: auction result: %w", err)
	}
	return result, nil
}

// OpenLaunch creates an unseeded market with a virtual-curve launch over it.
func (s *SeedService) OpenLaunch(ctx context.Context, creator, question, oracle string, tvlThreshold int64, minParticipants int, deadline time.Time, vestingWindow time.Duration, expiry time.Time) (launchID, marketID string, err error) {
	launchID, marketID, err = s.launches.Open(creator, question, oracle, tvlThreshold, minParticipants, deadline, vestingWindow, expiry)
	if err != nil {
		return "", "", fmt.Errorf("seed_service: open launch: %w", err)
	}

	s.syncMarket(ctx, marketID)
	s.auditLog(ctx, "launch.opened", map[string]any{
		"launch_id":        launchID,
		"market_id":        marketID,
		"creator":          creator,
		"tvl_threshold":    tvlThreshold,
		"min_participants": minParticipants,
	})
	s.publish(ctx, "launches", map[string]string{
		"type":      "launch_opened",
		"launch_id": launchID,
		"market_id": marketID,
	})
	return launchID, marketID, nil
}

// CommitLaunch escrows a participant's per-side contribution.
func (s *SeedService) CommitLaunch(ctx context.Context, participant, launchID string, amountYes, amountNo int64) error {
	if err := s.launches.Commit(participant, launchID, amountYes, amountNo); err != nil {
		return fmt.Errorf("seed_service: commit launch: %w", err)
	}
	s.auditLog(ctx, "launch.committed", map[string]any{
		"launch_id":   launchID,
		"participant": participant,
		"amount_yes":  amountYes,
		"amount_no":   amountNo,
	})
	return nil
}

// Graduate moves the accumulated total into the market as one asymmetric
// liquidity deposit and starts vesting.
func (s *SeedService) Graduate(ctx context.Context, launchID string) (domain.LaunchInfo, error) {
	if err := s.launches.Graduate(launchID); err != nil {
		return domain.LaunchInfo{}, fmt.Errorf("seed_service: graduate: %w", err)
	}
	info, err := s.launches.Info(launchID)
	if err != nil {
		return domain.LaunchInfo{}, fmt.Errorf("seed_service: graduate: %w", err)
	}

	s.syncMarket(ctx, info.MarketID)
	s.auditLog(ctx, "launch.graduated", map[string]any{
		"launch_id":    launchID,
		"market_id":    info.MarketID,
		"total_yes":    info.TotalYes,
		"total_no":     info.TotalNo,
		"participants": info.Participants,
	})
	s.publish(ctx, "launches", map[string]string{
		"type":      "launch_graduated",
		"launch_id": launchID,
		"market_id": info.MarketID,
	})
	if err := s.notifier.Notify(ctx, "launch_graduated", "Launch graduated",
		fmt.Sprintf("Launch %s graduated with %d participants", launchID, info.Participants)); err != nil {
		s.logger.WarnContext(ctx, "seed_service: notify failed",
			slog.String("error", err.Error()),
		)
	}
	return info, nil
}

// ClaimVested transfers the participant's newly vested LP shares.
func (s *SeedService) ClaimVested(ctx context.Context, participant, launchID string) (claimedYes, claimedNo int64, err error) {
	claimedYes, claimedNo, err = s.launches.Claim(participant, launchID)
	if err != nil {
		return 0, 0, fmt.Errorf("seed_service: claim vested: %w", err)
	}
	if claimedYes == 0 && claimedNo == 0 {
		return 0, 0, nil
	}
	s.auditLog(ctx, "launch.claimed", map[string]any{
		"launch_id":   launchID,
		"participant": participant,
		"claimed_yes": claimedYes,
		"claimed_no":  claimedNo,
	})
	return claimedYes, claimedNo, nil
}

// ExpireLaunch refunds every commitment of a launch that missed its
// thresholds by the deadline.
func (s *SeedService) ExpireLaunch(ctx context.Context, launchID string) error {
	if err := s.launches.Expire(launchID); err != nil {
		return fmt.Errorf("seed_service: expire launch: %w", err)
	}
	s.auditLog(ctx, "launch.expired", map[string]any{"launch_id": launchID})
	s.publish(ctx, "launches", map[string]string{
		"type":      "launch_expired",
		"launch_id": launchID,
	})
	return nil
}

// LaunchInfo returns the launch read model.
func (s *SeedService) LaunchInfo(ctx context.Context, launchID string) (domain.LaunchInfo, error) {
	info, err := s.launches.Info(launchID)
	if err != nil {
		return domain.LaunchInfo{}, fmt.Errorf("seed_service: launch info: %w", err)
	}
	return info, nil
}

// LaunchCommitment returns a participant's commitment record.
func (s *SeedService) LaunchCommitment(ctx context.Context, launchID, participant string) (domain.LaunchCommitment, error) {
	c, err := s.launches.Commitment(launchID, participant)
	if err != nil {
		return domain.LaunchCommitment{}, fmt.Errorf("seed_service: launch commitment: %w", err)
	}
	return c, nil
}

func (s *SeedService) syncMarket(ctx context.Context, marketID string) {
	m, err := s.ledger.Get(marketID)
	if err != nil {
		return
	}
	if err := s.markets.Upsert(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "seed_service: persist market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "seed_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SeedService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "seed_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SeedService) publish(ctx context.Context, channel string, payload map[string]string) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "seed_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
