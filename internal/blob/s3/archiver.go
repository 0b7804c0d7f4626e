package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantpulse/makerbot/internal/domain"
)

// ExecLogArchiveStore is the slice of the execution log store the archiver
// needs: time-ranged reads plus deletion of rows that were safely uploaded.
type ExecLogArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionLogEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves cold execution log entries out of the primary store into
// S3 as newline-delimited JSON, partitioned by year-month.
type Archiver struct {
	writer *Writer
	store  ExecLogArchiveStore
	logger *slog.Logger

	// Prune controls whether archived rows are deleted from the primary
	// store after a successful upload.
	Prune bool
}

// NewArchiver creates an Archiver.
func NewArchiver(writer *Writer, store ExecLogArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveExecutionLog uploads all entries created before the cutoff to
// archive/execution_log/YYYY-MM.jsonl and, when Prune is set, deletes them
// from the primary store. It returns the number of archived entries.
func (a *Archiver) ArchiveExecutionLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath("execution_log", before)
	// Busy months can outgrow a single-shot upload.
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), "application/x-ndjson", minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(entries))
	a.logger.Info("archived execution log entries",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)

	if a.Prune {
		deleted, err := a.store.DeleteBefore(ctx, before)
		if err != nil {
			// The upload succeeded; report the count alongside the prune error.
			return count, fmt.Errorf("s3blob: prune after archive: %w", err)
		}
		a.logger.Info("pruned archived entries", slog.Int64("deleted", deleted))
	}

	return count, nil
}

// Run archives on a fixed cadence until the context is cancelled. Each pass
// archives entries older than the retention window.
func (a *Archiver) Run(ctx context.Context, every, retention time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if _, err := a.ArchiveExecutionLog(ctx, cutoff); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/execution_log/2026-08.jsonl
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
