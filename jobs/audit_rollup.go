package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/rentops/rentops/internal/audit"
)

// The TTL outlives the nightly refresh by an hour so a single missed run
// does not blank the dashboard.
const rollupCacheTTL = 25 * time.Hour

// Summarizer is the slice of the audit service the rollup needs.
type Summarizer interface {
	Summary(ctx context.Context, filters audit.Filters) ([]audit.DaySummary, error)
}

// AuditRollupJob aggregates recent audit activity into a cached rollup.
type AuditRollupJob struct {
	service Summarizer
	cache   *redis.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuditRollupJob constructs the rollup job.
func NewAuditRollupJob(service Summarizer, cache *redis.Client, logger *slog.Logger) *AuditRollupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRollupJob{
		service: service,
		cache:   cache,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes TaskAuditRollup tasks.
func (j *AuditRollupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditRollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.Days
	if days <= 0 {
		days = 30
	}

	// The summary endpoint matches the rollup against whole days, so the
	// window is anchored to UTC midnight rather than the tick time.
	day := j.now().UTC().Truncate(24 * time.Hour)
	summaries, err := j.service.Summary(ctx, audit.Filters{
		From: day.AddDate(0, 0, -days),
		To:   day.Add(24*time.Hour - time.Nanosecond),
	})
	if err != nil {
		return err
	}

	data, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	if err := j.cache.Set(ctx, audit.RollupCacheKey, data, rollupCacheTTL).Err(); err != nil {
		return err
	}
	j.logger.Info("audit rollup refreshed",
		slog.Int("days", days), slog.Int("buckets", len(summaries)))
	return nil
}
