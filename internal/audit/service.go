package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rentops/rentops/internal/shared"
)

// Service coordinates audit log reads and writes.
type Service struct {
	repo Repository
}

// NewService builds a Service over the given store.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record validates and persists a new entry. Incomplete entries are rejected
// before they reach the store; the error lists every missing field.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	if missing := Validate(entry); len(missing) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrIncompleteAuditEntry, strings.Join(missing, "; "))
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = NowUTC()
	}
	return s.repo.Insert(ctx, entry)
}

// Timeline returns one page of entries. Page sizes are clamped to 1..50 and
// the store is asked for one extra row to detect a next page.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching entry projected for CSV output.
func (s *Service) Export(ctx context.Context, filters Filters, includeDetails bool) ([]ExportRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	entries, err := s.repo.All(ctx, filters)
	if err != nil {
		return nil, err
	}
	return ForExport(entries, includeDetails), nil
}

// Summary aggregates matching entries into per-day activity rollups.
func (s *Service) Summary(ctx context.Context, filters Filters) ([]DaySummary, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	entries, err := s.repo.All(ctx, filters)
	if err != nil {
		return nil, err
	}
	return SummarizeByDay(entries), nil
}

// IsIncomplete reports whether the error came from entry validation.
func IsIncomplete(err error) bool {
	return errors.Is(err, shared.ErrIncompleteAuditEntry)
}
