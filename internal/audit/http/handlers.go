// Package audithttp serves the audit timeline, export and summary endpoints.
package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/rentops/rentops/internal/audit"
	"github.com/rentops/rentops/internal/guard"
	"github.com/rentops/rentops/internal/platform/httpx"
	"github.com/rentops/rentops/internal/session"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 50
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90

	summaryCacheTTL = time.Minute
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters, includeDetails bool) ([]audit.ExportRow, error)
	Summary(ctx context.Context, filters audit.Filters) ([]audit.DaySummary, error)
	Record(ctx context.Context, entry audit.Entry) error
}

// Handler serves audit timeline requests.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	guard   guard.Middleware
	cache   *redis.Client
	group   singleflight.Group
	now     func() time.Time
}

// NewHandler builds a new audit handler. The cache client is optional; without
// it summaries are recomputed per request, deduplicated by singleflight.
func NewHandler(logger *slog.Logger, service TimelineService, g guard.Middleware, cache *redis.Client) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		guard:   g,
		cache:   cache,
		now:     time.Now,
	}
}

type entryResponse struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Module     string    `json:"module"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Details    string    `json:"details,omitempty"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Critical   bool      `json:"critical"`
}

type timelineResponse struct {
	Rows   []entryResponse `json:"rows"`
	Paging pagingResponse  `json:"paging"`
}

type pagingResponse struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

type summaryResponse struct {
	Date           string   `json:"date"`
	ActionCount    int      `json:"action_count"`
	CriticalCount  int      `json:"critical_count"`
	ModulesTouched []string `json:"modules_touched"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	rows := make([]entryResponse, 0, len(result.Rows))
	for _, entry := range result.Rows {
		rows = append(rows, entryResponse{
			ID:         entry.ID,
			Timestamp:  entry.Timestamp,
			ActorID:    entry.ActorID,
			ActorName:  entry.ActorName,
			ActorRole:  entry.ActorRole,
			Module:     entry.Module,
			Action:     entry.Action,
			TargetType: entry.TargetType,
			TargetID:   entry.TargetID,
			Details:    entry.Details,
			IPAddress:  entry.IPAddress,
			UserAgent:  entry.UserAgent,
			Critical:   audit.IsCritical(entry.Action, entry.Module),
		})
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Rows: rows,
		Paging: pagingResponse{
			Page:     result.Paging.Page,
			PageSize: result.Paging.PageSize,
			HasNext:  result.Paging.HasNext,
			PrevPage: result.Paging.PrevPage,
			NextPage: result.Paging.NextPage,
		},
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	includeDetails := r.URL.Query().Get("include_details") == "1"
	rows, err := h.service.Export(r.Context(), filters, includeDetails)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	h.recordExport(r, filters, len(rows))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if err := audit.WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	key := summaryKey(filters)

	if h.cache != nil {
		// The nightly precomputed rollup covers the default dashboard window.
		if h.rollupWindow(filters) {
			if cached, err := h.cache.Get(r.Context(), audit.RollupCacheKey).Bytes(); err == nil {
				var days []audit.DaySummary
				if json.Unmarshal(cached, &days) == nil {
					httpx.JSON(w, http.StatusOK, summaryResponses(days))
					return
				}
			}
		}
		if cached, err := h.cache.Get(r.Context(), key).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	// Concurrent identical requests share one computation.
	value, err, _ := h.group.Do(key, func() (any, error) {
		summaries, err := h.service.Summary(r.Context(), filters)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(summaryResponses(summaries))
		if err != nil {
			return nil, err
		}
		if h.cache != nil {
			if err := h.cache.Set(r.Context(), key, payload, summaryCacheTTL).Err(); err != nil {
				h.logger.Warn("cache audit summary", slog.Any("error", err))
			}
		}
		return payload, nil
	})
	if err != nil {
		h.handleServerError(w, "summarize audit timeline", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value.([]byte))
}

func summaryResponses(summaries []audit.DaySummary) []summaryResponse {
	out := make([]summaryResponse, 0, len(summaries))
	for _, day := range summaries {
		out = append(out, summaryResponse{
			Date:           day.Date,
			ActionCount:    day.ActionCount,
			CriticalCount:  day.CriticalCount,
			ModulesTouched: day.ModulesTouched,
		})
	}
	return out
}

// rollupWindow reports whether the request matches the precomputed rollup:
// the unfiltered 30 day range ending today.
func (h *Handler) rollupWindow(f audit.Filters) bool {
	if f.ActorID != "" || f.Module != "" || f.Action != "" {
		return false
	}
	today, err := time.Parse("2006-01-02", h.now().UTC().Format("2006-01-02"))
	if err != nil {
		return false
	}
	return f.From.Equal(today.AddDate(0, 0, -30)) &&
		f.To.Equal(today.Add(24*time.Hour-time.Nanosecond))
}

func summaryKey(filters audit.Filters) string {
	return fmt.Sprintf("rentops:audit:summary:%s:%s:%s:%s:%s",
		filters.From.Format("2006-01-02"), filters.To.Format("2006-01-02"),
		filters.ActorID, filters.Module, filters.Action)
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	now := h.now().UTC()
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.Filters{}, validationError{field: "to"}
	}
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.Filters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) {
		return audit.Filters{}, validationError{field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.Filters{}, validationError{field: "range"}
	}

	page := 1
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}

	// The to bound is inclusive for the whole day.
	return audit.Filters{
		From:     fromTime,
		To:       toTime.Add(24*time.Hour - time.Nanosecond),
		ActorID:  strings.TrimSpace(r.URL.Query().Get("actor")),
		Module:   strings.TrimSpace(r.URL.Query().Get("module")),
		Action:   strings.TrimSpace(r.URL.Query().Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// recordExport writes the export itself into the log, so pulling the audit
// trail leaves a trail.
func (h *Handler) recordExport(r *http.Request, filters audit.Filters, rowCount int) {
	store := session.StoreFromContext(r.Context())
	if store == nil {
		return
	}
	snap, ok := store.Current()
	if !ok {
		return
	}
	actorRole := snap.RoleName
	if actorRole == "" {
		actorRole = string(snap.Kind)
	}
	entry := audit.Entry{
		ActorID:    snap.IdentityID,
		ActorName:  snap.DisplayName,
		ActorRole:  actorRole,
		Module:     "reports",
		Action:     "export",
		TargetType: "audit_log",
		TargetID: fmt.Sprintf("%s..%s", filters.From.Format("2006-01-02"),
			filters.To.Format("2006-01-02")),
		Details:   fmt.Sprintf(`{"rows":%d}`, rowCount),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := h.service.Record(r.Context(), entry); err != nil {
		h.logger.Warn("record audit export", slog.Any("error", err))
	}
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var v validationError
	if errors.As(err, &v) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid filter: "+v.field)
		return
	}
	h.handleServerError(w, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	if h.logger != nil {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
