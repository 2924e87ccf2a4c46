package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines the audit log store operations the service needs.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	All(ctx context.Context, filters Filters) ([]Entry, error)
}

// PGRepository stores entries in the audit_log table.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `id, occurred_at, actor_id, actor_name, actor_role, module, action, target_type, target_id, details, ip_address, user_agent`

// Insert writes one immutable entry.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_log (`+entryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID,
		pgtype.Timestamptz{Time: entry.Timestamp.UTC(), Valid: true},
		entry.ActorID,
		entry.ActorName,
		entry.ActorRole,
		entry.Module,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Details,
		entry.IPAddress,
		entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Window returns one page of entries, newest first.
func (r *PGRepository) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	query, args := buildListQuery(filters)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return r.query(ctx, query, args)
}

// All returns every matching entry, newest first, for exports.
func (r *PGRepository) All(ctx context.Context, filters Filters) ([]Entry, error) {
	query, args := buildListQuery(filters)
	query += " ORDER BY occurred_at DESC"
	return r.query(ctx, query, args)
}

func (r *PGRepository) query(ctx context.Context, query string, args []any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func buildListQuery(filters Filters) (string, []any) {
	var conditions []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", pgtype.Timestamptz{Time: filters.From.UTC(), Valid: true})
	}
	if !filters.To.IsZero() {
		add("occurred_at <= $%d", pgtype.Timestamptz{Time: filters.To.UTC(), Valid: true})
	}
	if v := strings.TrimSpace(filters.ActorID); v != "" {
		add("actor_id = $%d", v)
	}
	if v := strings.TrimSpace(filters.Module); v != "" {
		add("module = $%d", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		add("action = $%d", v)
	}
	query := "SELECT " + entryColumns + " FROM audit_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query, args
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var occurredAt pgtype.Timestamptz
	err := row.Scan(
		&entry.ID,
		&occurredAt,
		&entry.ActorID,
		&entry.ActorName,
		&entry.ActorRole,
		&entry.Module,
		&entry.Action,
		&entry.TargetType,
		&entry.TargetID,
		&entry.Details,
		&entry.IPAddress,
		&entry.UserAgent,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: scan entry: %w", err)
	}
	if occurredAt.Valid {
		entry.Timestamp = occurredAt.Time
	} else {
		entry.Timestamp = time.Time{}
	}
	return entry, nil
}

var _ Repository = (*PGRepository)(nil)
