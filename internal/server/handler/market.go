package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, creator, question, oracle string, seedYes, seedNo int64, expiry time.Time) (domain.MarketInfo, error)
	GetMarket(ctx context.Context, id string) (domain.MarketInfo, error)
	ListMarkets(ctx context.Context) []domain.MarketInfo
	Settle(ctx context.Context, caller, id string, outcomeYes bool) (domain.MarketInfo, error)
	AuthorizeCreator(ctx context.Context, caller, account string) error
	RevokeCreator(ctx context.Context, caller, account string) error
	Count(ctx context.Context) (int64, error)
	ListArchives(ctx context.Context) ([]domain.BlobInfo, error)
	OpenArchive(ctx context.Context, path string) (io.ReadCloser, error)
}

// MarketHandler serves market registry HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	Creator  string    `json:"creator"`
	Question string    `json:"question"`
	Oracle   string    `json:"oracle"`
	SeedYes  int64     `json:"seed_yes"`
	SeedNo   int64     `json:"seed_no"`
	Expiry   time.Time `json:"expiry"`
}

// CreateMarket registers a new market seeded from the creator's collateral.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Creator == "" || req.Question == "" || req.Oracle == "" {
		writeError(w, http.StatusBadRequest, "creator, question and oracle are required")
		return
	}

	info, err := h.markets.CreateMarket(r.Context(), req.Creator, req.Question, req.Oracle, req.SeedYes, req.SeedNo, req.Expiry)
	if err != nil {
		writeDomainError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.MarketInfo `json:"markets"`
	Total   int                 `json:"total"`
}

// ListMarkets returns every registered market.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.ListMarkets(r.Context())
	if markets == nil {
		markets = []domain.MarketInfo{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   len(markets),
	})
}

// GetMarket returns a single market read model by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	info, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// settleRequest is the JSON body for settlement.
type settleRequest struct {
	Caller     string `json:"caller"`
	OutcomeYes bool   `json:"outcome_yes"`
}

// Settle applies the one-shot outcome. Only the market's oracle may call it.
// POST /api/markets/{id}/settle
func (h *MarketHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	info, err := h.markets.Settle(r.Context(), req.Caller, id, req.OutcomeYes)
	if err != nil {
		writeDomainError(w, r, h.logger, "settle market", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// creatorRequest is the JSON body for capability grants.
type creatorRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
}

// AuthorizeCreator grants an account the market-creation capability.
// POST /api/creators
func (h *MarketHandler) AuthorizeCreator(w http.ResponseWriter, r *http.Request) {
	var req creatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Caller == "" || req.Account == "" {
		writeError(w, http.StatusBadRequest, "caller and account are required")
		return
	}

	if err := h.markets.AuthorizeCreator(r.Context(), req.Caller, req.Account); err != nil {
		writeDomainError(w, r, h.logger, "authorize creator", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "authorized",
		"account": req.Account,
	})
}

// archiveInfo is the JSON shape of one exported settlement bundle.
type archiveInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// listArchivesResponse wraps the archive list output with metadata.
type listArchivesResponse struct {
	Archives []archiveInfo `json:"archives"`
	Total    int           `json:"total"`
}

// ListArchives enumerates the settlement bundles exported to cold storage.
// GET /api/archives
func (h *MarketHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.markets.ListArchives(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list archives", err)
		return
	}

	archives := make([]archiveInfo, 0, len(infos))
	for _, info := range infos {
		archives = append(archives, archiveInfo{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, listArchivesResponse{
		Archives: archives,
		Total:    len(archives),
	})
}

// GetArchive streams one exported bundle as newline-delimited JSON.
// GET /api/archives/{path...}
func (h *MarketHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing archive path")
		return
	}

	rc, err := h.markets.OpenArchive(r.Context(), path)
	if err != nil {
		writeDomainError(w, r, h.logger, "get archive", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are already out; all we can do is log the broken stream.
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// RevokeCreator removes an account from the capability set.
// DELETE /api/creators/{account}?caller=...
func (h *MarketHandler) RevokeCreator(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	caller := r.URL.Query().Get("caller")
	if account == "" || caller == "" {
		writeError(w, http.StatusBadRequest, "account and caller are required")
		return
	}

	if err := h.markets.RevokeCreator(r.Context(), caller, account); err != nil {
		writeDomainError(w, r, h.logger, "revoke creator", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "revoked",
		"account": account,
	})
}
