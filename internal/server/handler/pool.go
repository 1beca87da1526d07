package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// PoolService defines the methods that the pool handler requires from the
// service layer.
type PoolService interface {
	AddLiquidity(ctx context.Context, owner, marketID string, amountYes, amountNo, minSharesYes, minSharesNo int64) (int64, int64, error)
	RemoveLiquidity(ctx context.Context, owner, marketID string, burnYes, burnNo, minOutYes, minOutNo int64) (int64, int64, error)
	Trade(ctx context.Context, owner, marketID string, buyYes bool, amountIn, minOut int64) (int64, error)
	Quote(ctx context.Context, marketID string, buyYes bool, amountIn int64) (int64, error)
	Redeem(ctx context.Context, owner, marketID string) (int64, error)
	Positions(ctx context.Context, marketID, owner string) (domain.LiquidityPosition, domain.TraderPosition, error)
}

// PoolHandler serves AMM HTTP endpoints.
type PoolHandler struct {
	pool   PoolService
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler with the given service and logger.
func NewPoolHandler(pool PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		pool:   pool,
		logger: logger,
	}
}

// liquidityRequest is the JSON body for both liquidity operations. For adds
// the amounts are collateral deposits; for removes they are share burns.
type liquidityRequest struct {
	Owner     string `json:"owner"`
	AmountYes int64  `json:"amount_yes"`
	AmountNo  int64  `json:"amount_no"`
	MinYes    int64  `json:"min_yes"`
	MinNo     int64  `json:"min_no"`
}

// AddLiquidity deposits collateral per side and mints LP shares.
// POST /api/markets/{id}/liquidity
func (h *PoolHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	mintedYes, mintedNo, err := h.pool.AddLiquidity(r.Context(), req.Owner, marketID, req.AmountYes, req.AmountNo, req.MinYes, req.MinNo)
	if err != nil {
		writeDomainError(w, r, h.logger, "add liquidity", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{
		"minted_yes": mintedYes,
		"minted_no":  mintedNo,
	})
}

// RemoveLiquidity burns LP shares and pays out collateral per side.
// DELETE /api/markets/{id}/liquidity
func (h *PoolHandler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	outYes, outNo, err := h.pool.RemoveLiquidity(r.Context(), req.Owner, marketID, req.AmountYes, req.AmountNo, req.MinYes, req.MinNo)
	if err != nil {
		writeDomainError(w, r, h.logger, "remove liquidity", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"out_yes": outYes,
		"out_no":  outNo,
	})
}

// tradeRequest is the JSON body for swaps against the pool.
type tradeRequest struct {
	Owner    string `json:"owner"`
	BuyYes   bool   `json:"buy_yes"`
	AmountIn int64  `json:"amount_in"`
	MinOut   int64  `json:"min_out"`
}

// Trade swaps collateral for outcome units on one side of the pool.
// POST /api/markets/{id}/trade
func (h *PoolHandler) Trade(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	out, err := h.pool.Trade(r.Context(), req.Owner, marketID, req.BuyYes, req.AmountIn, req.MinOut)
	if err != nil {
		writeDomainError(w, r, h.logger, "trade", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"out": out})
}

// Quote prices a prospective trade without executing it.
// GET /api/markets/{id}/quote?buy_yes=true&amount_in=100
func (h *PoolHandler) Quote(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	q := r.URL.Query()
	buyYes := q.Get("buy_yes") == "true"
	amountIn, err := strconv.ParseInt(q.Get("amount_in"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount_in must be an integer")
		return
	}

	out, err := h.pool.Quote(r.Context(), marketID, buyYes, amountIn)
	if err != nil {
		writeDomainError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"out": out})
}

// redeemRequest is the JSON body for post-settlement redemption.
type redeemRequest struct {
	Owner string `json:"owner"`
}

// Redeem pays out the owner's winning-side position after settlement.
// POST /api/markets/{id}/redeem
func (h *PoolHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	paid, err := h.pool.Redeem(r.Context(), req.Owner, marketID)
	if err != nil {
		writeDomainError(w, r, h.logger, "redeem", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"paid": paid})
}

// positionsResponse bundles both kinds of position an owner can hold.
type positionsResponse struct {
	Liquidity domain.LiquidityPosition `json:"liquidity"`
	Trader    domain.TraderPosition    `json:"trader"`
}

// Positions returns the owner's LP shares and outcome positions in a market.
// GET /api/markets/{id}/positions?owner=...
func (h *PoolHandler) Positions(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	lp, tp, err := h.pool.Positions(r.Context(), marketID, owner)
	if err != nil {
		writeDomainError(w, r, h.logger, "positions", err)
		return
	}
	writeJSON(w, http.StatusOK, positionsResponse{Liquidity: lp, Trader: tp})
}
