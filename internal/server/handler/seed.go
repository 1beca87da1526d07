package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// SeedService defines the methods that the seed handler requires from the
// service layer: the sealed-bid auction and virtual-curve launch flows.
type SeedService interface {
	OpenAuction(ctx context.Context, creator, question, oracle string, commitWindow, revealWindow time.Duration, expiry time.Time) (string, string, error)
	CommitBid(ctx context.Context, bidder, auctionID string, hash [32]byte, deposit int64) error
	RevealBid(ctx context.Context, bidder, auctionID string, price int64, buyYes bool, salt []byte, amount int64) error
	FinalizeAuction(ctx context.Context, auctionID string) (domain.AuctionResult, error)
	AuctionInfo(ctx context.Context, auctionID string) (domain.AuctionState, string, time.Time, time.Time, error)
	AuctionResult(ctx context.Context, auctionID string) (domain.AuctionResult, error)

	OpenLaunch(ctx context.Context, creator, question, oracle string, tvlThreshold int64, minParticipants int, deadline time.Time, vestingWindow time.Duration, expiry time.Time) (string, string, error)
	CommitLaunch(ctx context.Context, participant, launchID string, amountYes, amountNo int64) error
	Graduate(ctx context.Context, launchID string) (domain.LaunchInfo, error)
	ClaimVested(ctx context.Context, participant, launchID string) (int64, int64, error)
	ExpireLaunch(ctx context.Context, launchID string) error
	LaunchInfo(ctx context.Context, launchID string) (domain.LaunchInfo, error)
	LaunchCommitment(ctx context.Context, launchID, participant string) (domain.LaunchCommitment, error)
}

// SeedHandler serves auction and launch HTTP endpoints.
type SeedHandler struct {
	seeds  SeedService
	logger *slog.Logger
}

// NewSeedHandler creates a SeedHandler with the given service and logger.
func NewSeedHandler(seeds SeedService, logger *slog.Logger) *SeedHandler {
	return &SeedHandler{
		seeds:  seeds,
		logger: logger,
	}
}

// openAuctionRequest is the JSON body for opening an auction. Windows are
// Go duration strings ("24h", "90m").
type openAuctionRequest struct {
	Creator      string    `json:"creator"`
	Question     string    `json:"question"`
	Oracle       string    `json:"oracle"`
	CommitWindow string    `json:"commit_window"`
	RevealWindow string    `json:"reveal_window"`
	Expiry       time.Time `json:"expiry"`
}

// OpenAuction creates an unseeded market with a commit-reveal auction over it.
// POST /api/auctions
func (h *SeedHandler) OpenAuction(w http.ResponseWriter, r *http.Request) {
	var req openAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	commitWindow, err := time.ParseDuration(req.CommitWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid commit_window: "+err.Error())
		return
	}
	revealWindow, err := time.ParseDuration(req.RevealWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reveal_window: "+err.Error())
		return
	}

	auctionID, marketID, err := h.seeds.OpenAuction(r.Context(), req.Creator, req.Question, req.Oracle, commitWindow, revealWindow, req.Expiry)
	if err != nil {
		writeDomainError(w, r, h.logger, "open auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"auction_id": auctionID,
		"market_id":  marketID,
	})
}

// commitBidRequest carries a sealed bid: the hex keccak256 digest plus the
// escrowed deposit.
type commitBidRequest struct {
	Bidder  string `json:"bidder"`
	Hash    string `json:"hash"` // 64 hex chars
	Deposit int64  `json:"deposit"`
}

// CommitBid escrows a sealed bid against the auction.
// POST /api/auctions/{id}/commit
func (h *SeedHandler) CommitBid(w http.ResponseWriter, r *http.Request) {
	auctionID := pathParam(r, "id")
	var req commitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Bidder == "" {
		writeError(w, http.StatusBadRequest, "bidder is required")
		return
	}
	raw, err := hex.DecodeString(req.Hash)
	if err != nil || len(raw) != 32 {
		writeError(w, http.StatusBadRequest, "hash must be 32 hex-encoded bytes")
		return
	}
	var hash [32]byte
	copy(hash[:], raw)

	if err := h.seeds.CommitBid(r.Context(), req.Bidder, auctionID, hash, req.Deposit); err != nil {
		writeDomainError(w, r, h.logger, "commit bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "committed"})
}

// revealBidRequest opens a sealed bid; salt is hex-encoded.
type revealBidRequest struct {
	Bidder string `json:"bidder"`
	Price  int64  `json:"price"`
	BuyYes bool   `json:"buy_yes"`
	Salt   string `json:"salt"`
	Amount int64  `json:"amount"`
}

// RevealBid opens a previously committed sealed bid.
// POST /api/auctions/{id}/reveal
func (h *SeedHandler) RevealBid(w http.ResponseWriter, r *http.Request) {
	auctionID := pathParam(r, "id")
	var req revealBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Bidder == "" {
		writeError(w, http.StatusBadRequest, "bidder is required")
		return
	}
	salt, err := hex.DecodeString(req.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "salt must be hex-encoded")
		return
	}

	if err := h.seeds.RevealBid(r.Context(), req.Bidder, auctionID, req.Price, req.BuyYes, salt, req.Amount); err != nil {
		writeDomainError(w, r, h.logger, "reveal bid", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revealed"})
}

// FinalizeAuction clears the auction and seeds its market.
// POST /api/auctions/{id}/finalize
func (h *SeedHandler) FinalizeAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := pathParam(r, "id")

	result, err := h.seeds.FinalizeAuction(r.Context(), auctionID)
	if err != nil {
		writeDomainError(w, r, h.logger, "finalize auction", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAuction returns the auction's state and windows.
// GET /api/auctions/{id}
func (h *SeedHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := pathParam(r, "id")

	state, marketID, commitEnd, revealEnd, err := h.seeds.AuctionInfo(r.Context(), auctionID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get auction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id": auctionID,
		"market_id":  marketID,
		"state":      state,
		"commit_end": commitEnd,
		"reveal_end": revealEnd,
	})
}

// GetAuctionResult returns the clearing result of a finalized auction.
// GET /api/auctions/{id}/result
func (h *SeedHandler) GetAuctionResult(w http.ResponseWriter, r *http.Request) {
	auctionID := pathParam(r, "id")

	result, err := h.seeds.AuctionResult(r.Context(), auctionID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get auction result", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// openLaunchRequest is the JSON body for opening a launch.
type openLaunchRequest struct {
	Creator         string    `json:"creator"`
	Question        string    `json:"question"`
	Oracle          string    `json:"oracle"`
	TVLThreshold    int64     `json:"tvl_threshold"`
	MinParticipants int       `json:"min_participants"`
	Deadline        time.Time `json:"deadline"`
	VestingWindow   string    `json:"vesting_window"`
	Expiry          time.Time `json:"expiry"`
}

// OpenLaunch creates an unseeded market with a virtual-curve launch over it.
// POST /api/launches
func (h *SeedHandler) OpenLaunch(w http.ResponseWriter, r *http.Request) {
	var req openLaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	vestingWindow, err := time.ParseDuration(req.VestingWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vesting_window: "+err.Error())
		return
	}

	launchID, marketID, err := h.seeds.OpenLaunch(r.Context(), req.Creator, req.Question, req.Oracle, req.TVLThreshold, req.MinParticipants, req.Deadline, vestingWindow, req.Expiry)
	if err != nil {
		writeDomainError(w, r, h.logger, "open launch", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"launch_id": launchID,
		"market_id": marketID,
	})
}

// commitLaunchRequest carries a participant's per-side contribution.
type commitLaunchRequest struct {
	Participant string `json:"participant"`
	AmountYes   int64  `json:"amount_yes"`
	AmountNo    int64  `json:"amount_no"`
}

// CommitLaunch escrows a participant's contribution.
// POST /api/launches/{id}/commit
func (h *SeedHandler) CommitLaunch(w http.ResponseWriter, r *http.Request) {
	launchID := pathParam(r, "id")
	var req commitLaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	if err := h.seeds.CommitLaunch(r.Context(), req.Participant, launchID, req.AmountYes, req.AmountNo); err != nil {
		writeDomainError(w, r, h.logger, "commit launch", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "committed"})
}

// Graduate moves the accumulated total into the market and starts vesting.
// POST /api/launches/{id}/graduate
func (h *SeedHandler) Graduate(w http.ResponseWriter, r *http.Request) {
	launchID := pathParam(r, "id")

	info, err := h.seeds.Graduate(r.Context(), launchID)
	if err != nil {
		writeDomainError(w, r, h.logger, "graduate launch", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// claimVestedRequest names the participant claiming vested shares.
type claimVestedRequest struct {
	Participant string `json:"participant"`
}

// ClaimVested transfers the participant's newly vested LP shares.
// POST /api/launches/{id}/claim
func (h *SeedHandler) ClaimVested(w http.ResponseWriter, r *http.Request) {
	launchID := pathParam(r, "id")
	var req claimVestedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	claimedYes, claimedNo, err := h.seeds.ClaimVested(r.Context(), req.Participant, launchID)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim vested", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"claimed_yes": claimedYes,
		"claimed_no":  claimedNo,
	})
}

// ExpireLaunch refunds a launch that missed its thresholds by the deadline.
// POST /api/launches/{id}/expire
func (h *SeedHandler) ExpireLaunch(w http.ResponseWriter, r *http.Request) {
	launchID := pathParam(r, "id")

	if err := h.seeds.ExpireLaunch(r.Context(), launchID); err != nil {
		writeDomainError(w, r, h.logger, "expire launch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "expired"})
}

// GetLaunch returns the launch read model.
// GET /api/launches/{id}
func (h *SeedHandler) GetLaunch(w http.ResponseWriter, r *http.Request) {
	launchID := pathParam(r, "id")

	info, err := h.seeds.LaunchInfo(r.Context(), launchID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get launch", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetLaunchCommitment returns one participant's commitment record.
// GET /api/launches/{id}/commitments/{participant}
func (h *SeedHandler) GetLaunchCommitment(w http.ResponseWriter, r *http.Request) {
	launchID := pathParam(r, "id")
	participant := pathParam(r, "participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	c, err := h.seeds.LaunchCommitment(r.Context(), launchID, participant)
	if err != nil {
		writeDomainError(w, r, h.logger, "get launch commitment", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
