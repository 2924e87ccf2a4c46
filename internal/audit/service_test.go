package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rentops/rentops/internal/shared"
)

type stubRepo struct {
	entries  []Entry
	inserted []Entry
	lastLim  int
	lastOff  int
}

func (s *stubRepo) Insert(ctx context.Context, entry Entry) error {
	s.inserted = append(s.inserted, entry)
	return nil
}

func (s *stubRepo) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	s.lastLim, s.lastOff = limit, offset
	if offset >= len(s.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[offset:end], nil
}

func (s *stubRepo) All(ctx context.Context, filters Filters) ([]Entry, error) {
	return s.entries, nil
}

func seedEntries(n int) []Entry {
	entries := make([]Entry, 0, n)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		entries = append(entries, Entry{
			ID:         fmt.Sprintf("e%d", i),
			Timestamp:  base.Add(-time.Duration(i) * time.Minute),
			ActorID:    "7",
			ActorName:  "Ana",
			ActorRole:  "manager",
			Module:     "clients",
			Action:     "update",
			TargetType: "client",
			TargetID:   "3",
			IPAddress:  "10.0.0.1",
			UserAgent:  "curl/8.5.0",
		})
	}
	return entries
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	err := svc.Record(context.Background(), Entry{ActorID: "7"})
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrIncompleteAuditEntry)
	require.True(t, IsIncomplete(err))
	require.Contains(t, err.Error(), "actor_name is required")
	require.Empty(t, repo.inserted)
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	entry := seedEntries(1)[0]
	entry.ID = ""
	entry.Timestamp = time.Time{}
	require.NoError(t, svc.Record(context.Background(), entry))
	require.Len(t, repo.inserted, 1)
	require.NotEmpty(t, repo.inserted[0].ID)
	require.False(t, repo.inserted[0].Timestamp.IsZero())
	require.Equal(t, time.UTC, repo.inserted[0].Timestamp.Location())
}

func TestTimelineDetectsNextPage(t *testing.T) {
	repo := &stubRepo{entries: seedEntries(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), Filters{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 10)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 0, result.Paging.PrevPage)
	require.Equal(t, 2, result.Paging.NextPage)
	// One extra row is requested to detect the next page.
	require.Equal(t, 11, repo.lastLim)

	result, err = svc.Timeline(context.Background(), Filters{Page: 3, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.Equal(t, 0, result.Paging.NextPage)
	require.Equal(t, 20, repo.lastOff)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{entries: seedEntries(5)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), Filters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 50, result.Paging.PageSize)

	result, err = svc.Timeline(context.Background(), Filters{})
	require.NoError(t, err)
	require.Equal(t, 20, result.Paging.PageSize)
	require.Equal(t, 1, result.Paging.Page)
}

func TestExportProjectsRows(t *testing.T) {
	repo := &stubRepo{entries: seedEntries(3)}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), Filters{}, false)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "client/3", rows[0].Target)
}

func TestSummaryAggregates(t *testing.T) {
	repo := &stubRepo{entries: seedEntries(3)}
	svc := NewService(repo)

	days, err := svc.Summary(context.Background(), Filters{})
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.Equal(t, 3, days[0].ActionCount)
}
