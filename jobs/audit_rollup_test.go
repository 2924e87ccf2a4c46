package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rentops/rentops/internal/audit"
)

type stubSummarizer struct {
	filters   audit.Filters
	summaries []audit.DaySummary
	err       error
}

func (s *stubSummarizer) Summary(_ context.Context, filters audit.Filters) ([]audit.DaySummary, error) {
	s.filters = filters
	return s.summaries, s.err
}

func newRollupFixture(t *testing.T, service *stubSummarizer) (*AuditRollupJob, *redis.Client) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	job := NewAuditRollupJob(service, client, nil)
	job.now = func() time.Time {
		return time.Date(2026, 3, 1, 0, 45, 0, 0, time.UTC)
	}
	return job, client
}

func TestAuditRollupUsesWholeDayWindow(t *testing.T) {
	service := &stubSummarizer{summaries: []audit.DaySummary{
		{Date: "2026-03-01", ActionCount: 4, CriticalCount: 1, ModulesTouched: []string{"clients"}},
	}}
	job, client := newRollupFixture(t, service)

	task, err := NewAuditRollupTask(30)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	// The nightly tick fires shortly after midnight, but the cached window
	// must line up with the summary endpoint's whole-day bounds.
	require.Equal(t, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), service.filters.From)
	require.Equal(t, time.Date(2026, 3, 1, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC), service.filters.To)

	data, err := client.Get(context.Background(), audit.RollupCacheKey).Bytes()
	require.NoError(t, err)
	var cached []audit.DaySummary
	require.NoError(t, json.Unmarshal(data, &cached))
	require.Equal(t, service.summaries, cached)

	ttl, err := client.TTL(context.Background(), audit.RollupCacheKey).Result()
	require.NoError(t, err)
	require.Equal(t, rollupCacheTTL, ttl)
}

func TestAuditRollupDefaultsWindow(t *testing.T) {
	service := &stubSummarizer{}
	job, _ := newRollupFixture(t, service)

	task, err := NewAuditRollupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), service.filters.From)
}

func TestAuditRollupSkipsRetryOnBadPayload(t *testing.T) {
	service := &stubSummarizer{}
	job, _ := newRollupFixture(t, service)

	task := asynq.NewTask(TaskAuditRollup, []byte("{not json"))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}
