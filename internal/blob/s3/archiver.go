package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// ArchiveImpl implements domain.Archiver: it exports settled markets, with
// their orders and fills, as JSONL objects in S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	markets domain.MarketStore
	orders  domain.OrderStore
	fills   domain.FillStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	markets domain.MarketStore,
	orders domain.OrderStore,
	fills domain.FillStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		markets: markets,
		orders:  orders,
		fills:   fills,
		audit:   audit,
	}
}

// marketArchive is the exported record for one settled market: the frozen
// ledger snapshot plus every order and fill it produced.
type marketArchive struct {
	Market domain.Market  `json:"market"`
	Orders []domain.Order `json:"orders"`
	Fills  []domain.Fill  `json:"fills"`
}

// ArchiveSettled exports every market settled at or before the cutoff as one
// JSONL file per year-month, records the export in the audit log, and returns
// the number of archived markets.
func (a *ArchiveImpl) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	records := make([]marketArchive, 0, len(markets))
	for _, m := range markets {
		orders, err := a.orders.ListByMarket(ctx, m.ID, domain.ListOpts{})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settled orders %s: %w", m.ID, err)
		}
		fills, err := a.fills.ListByMarket(ctx, m.ID, domain.ListOpts{})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settled fills %s: %w", m.ID, err)
		}
		records = append(records, marketArchive{Market: m, Orders: orders, Fills: fills})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled marshal: %w", err)
	}

	path := archivePath("markets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settled upload: %w", err)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive.markets", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive settled audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/markets/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
