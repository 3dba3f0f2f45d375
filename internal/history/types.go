// Package history persists completed analyses so callers can list, review
// and export them later. The analysis engine itself stores nothing.
package history

import (
	"context"
	"io"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/medreport-analyzer/internal/domain"
)

// Record is one stored analysis. The report text itself is never stored.
type Record struct {
	ID             string                 `json:"id"`
	Source         string                 `json:"source,omitempty"` // file name or caller label
	Path           domain.AnalysisPath    `json:"path"`
	Provider       string                 `json:"provider,omitempty"`
	FallbackReason string                 `json:"fallback_reason,omitempty"`
	InputChars     int                    `json:"input_chars"`
	CriticalCount  int                    `json:"critical_count"`
	AttentionCount int                    `json:"attention_count"`
	Result         *domain.AnalysisResult `json:"result"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewRecord captures an analysis for storage.
func NewRecord(source, text string, analysis *domain.Analysis) *Record {
	rec := &Record{
		ID:             uuid.New().String(),
		Source:         source,
		Path:           analysis.Path,
		Provider:       analysis.Provider,
		FallbackReason: analysis.FallbackReason,
		InputChars:     utf8.RuneCountInString(text),
		Result:         analysis.Result,
		CreatedAt:      time.Now().UTC(),
	}
	if analysis.Result != nil {
		counts := analysis.Result.CountByStatus()
		rec.CriticalCount = counts[domain.StatusCritical]
		rec.AttentionCount = counts[domain.StatusAttention]
	}
	return rec
}

// Store defines the interface for analysis history storage.
type Store interface {
	// Save inserts a record. ID and CreatedAt are filled in when empty.
	Save(ctx context.Context, rec *Record) error

	// Get returns the record or an error wrapping domain.ErrRecordNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]*Record, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a record; deleting a missing record is ErrRecordNotFound.
	Delete(ctx context.Context, id string) error

	// ExportJSON writes every record as a single JSON document.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads an export, skipping IDs that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close releases the underlying database.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

// maxExportLimit is the maximum number of records exported at once.
const maxExportLimit = 1000000

// prepare fills defaults before insert.
func prepare(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

// normalizePage clamps pagination arguments.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
