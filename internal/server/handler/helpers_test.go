package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

func TestWriteDomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrUnknownMarket, http.StatusNotFound},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInvalidPrice, http.StatusBadRequest},
		{domain.ErrBadReveal, http.StatusBadRequest},
		{domain.ErrNotOwner, http.StatusForbidden},
		{domain.ErrNotOracle, http.StatusForbidden},
		{domain.ErrNotAuthorized, http.StatusForbidden},
		{domain.ErrSlippageExceeded, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientAllowance, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientShares, http.StatusUnprocessableEntity},
		{domain.ErrAlreadySettled, http.StatusConflict},
		{domain.ErrNotSettled, http.StatusConflict},
		{domain.ErrAlreadyTerminal, http.StatusConflict},
		{domain.ErrNothingToClaim, http.StatusConflict},
		{domain.ErrWindowClosed, http.StatusConflict},
		{domain.ErrWindowOpen, http.StatusConflict},
		{domain.ErrAlreadyCommitted, http.StatusConflict},
		{domain.ErrBadState, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			// Handlers always pass wrapped errors; the mapping must unwrap.
			writeDomainError(rec, req, logger, "test", fmt.Errorf("venue: op: %w", tc.err))

			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/markets?limit=100&offset=25", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 100, opts.Limit)
	assert.Equal(t, 25, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999&offset=-5", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())
}
