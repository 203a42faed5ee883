package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
)

// multipartThreshold switches the upload to the multipart path for large
// batches.
const multipartThreshold = 8 * 1024 * 1024

// Exporter copies terminal (completed/cancelled) transactions older than a
// retention cutoff to month-partitioned JSONL objects, then stamps the rows
// as archived. Rows are never deleted from the primary store; the export is
// read-then-mark so a crash between the two re-exports on the next run
// rather than losing data.
type Exporter struct {
	writer domain.BlobWriter
	txns   domain.TransactionStore
	logger *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(writer domain.BlobWriter, txns domain.TransactionStore, logger *slog.Logger) *Exporter {
	return &Exporter{
		writer: writer,
		txns:   txns,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// ExportTransactions archives up to limit terminal transactions last touched
// before the cutoff. It returns the number of rows exported.
func (e *Exporter) ExportTransactions(ctx context.Context, before time.Time, limit int) (int, error) {
	txns, err := e.txns.ListArchivable(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export query: %w", err)
	}
	if len(txns) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		if err := enc.Encode(t); err != nil {
			return 0, fmt.Errorf("s3blob: encode transaction %s: %w", t.ID, err)
		}
		ids = append(ids, t.ID)
	}

	now := time.Now().UTC()
	path := fmt.Sprintf("archive/transactions/%s/%d.jsonl",
		now.Format("2006-01"), now.UnixNano())

	if buf.Len() >= multipartThreshold {
		err = e.writer.PutMultipart(ctx, path, &buf, int64(buf.Len()/4))
	} else {
		err = e.writer.Put(ctx, path, &buf, "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: export upload: %w", err)
	}

	if err := e.txns.MarkArchived(ctx, ids, now); err != nil {
		// The upload succeeded; the rows will be re-exported next run.
		return 0, fmt.Errorf("s3blob: mark archived: %w", err)
	}

	e.logger.InfoContext(ctx, "transactions exported",
		slog.Int("count", len(ids)),
		slog.String("path", path),
	)
	return len(ids), nil
}
