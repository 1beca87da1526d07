package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// BookService defines the methods that the book handler requires from the
// service layer.
type BookService interface {
	PlaceOrder(ctx context.Context, owner, marketID string, buyYes bool, price, size int64) (domain.Order, []domain.Fill, error)
	CancelOrder(ctx context.Context, owner, orderID string) (int64, error)
	Claim(ctx context.Context, owner, marketID string) (int64, error)
	OrderBook(ctx context.Context, marketID string, buyYes bool) ([]domain.BookLevel, error)
	BestBids(ctx context.Context, marketID string) (int64, int64, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// BookHandler serves order book HTTP endpoints.
type BookHandler struct {
	book   BookService
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler with the given service and logger.
func NewBookHandler(book BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		book:   book,
		logger: logger,
	}
}

// placeOrderRequest is the JSON body for order placement.
type placeOrderRequest struct {
	Owner    string `json:"owner"`
	MarketID string `json:"market_id"`
	BuyYes   bool   `json:"buy_yes"`
	Price    int64  `json:"price"`
	Size     int64  `json:"size"`
}

// placeOrderResponse returns the placed order plus any immediate matches.
type placeOrderResponse struct {
	Order domain.Order  `json:"order"`
	Fills []domain.Fill `json:"fills"`
}

// PlaceOrder escrows, matches and rests a limit order.
// POST /api/orders
func (h *BookHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" || req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "owner and market_id are required")
		return
	}

	order, fills, err := h.book.PlaceOrder(r.Context(), req.Owner, req.MarketID, req.BuyYes, req.Price, req.Size)
	if err != nil {
		writeDomainError(w, r, h.logger, "place order", err)
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	writeJSON(w, http.StatusCreated, placeOrderResponse{Order: order, Fills: fills})
}

// CancelOrder refunds the unmatched remainder of the owner's order.
// DELETE /api/orders/{id}?owner=...
func (h *BookHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	owner := r.URL.Query().Get("owner")
	if id == "" || owner == "" {
		writeError(w, http.StatusBadRequest, "order id and owner are required")
		return
	}

	refunded, err := h.book.CancelOrder(r.Context(), owner, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "cancelled",
		"order_id": id,
		"refunded": refunded,
	})
}

// GetOrder returns a single order by its ID.
// GET /api/orders/{id}
func (h *BookHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.book.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// OrderBook returns one side's aggregated price levels, best first.
// GET /api/markets/{id}/book?side=yes|no
func (h *BookHandler) OrderBook(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	side := r.URL.Query().Get("side")
	if side != "yes" && side != "no" {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	levels, err := h.book.OrderBook(r.Context(), marketID, side == "yes")
	if err != nil {
		writeDomainError(w, r, h.logger, "order book", err)
		return
	}
	if levels == nil {
		levels = []domain.BookLevel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"side":      side,
		"levels":    levels,
	})
}

// BestBids returns the best resting price per side; zero means empty.
// GET /api/markets/{id}/best
func (h *BookHandler) BestBids(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	bestYes, bestNo, err := h.book.BestBids(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, r, h.logger, "best bids", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"best_yes": bestYes,
		"best_no":  bestNo,
	})
}

// claimRequest is the JSON body for post-settlement order claims.
type claimRequest struct {
	Owner string `json:"owner"`
}

// Claim pays the owner for their matched winning-side fills after settlement.
// POST /api/markets/{id}/claim
func (h *BookHandler) Claim(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	paid, err := h.book.Claim(r.Context(), req.Owner, marketID)
	if err != nil {
		writeDomainError(w, r, h.logger, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"paid": paid})
}
