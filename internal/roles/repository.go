package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/shared"
)

// Repository defines persistence operations for roles.
type Repository interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id int64) (Role, error)
	Create(ctx context.Context, name, description string, rules []permissions.Rule) (Role, error)
	Update(ctx context.Context, id int64, name, description string, rules []permissions.Rule) (Role, error)
	Delete(ctx context.Context, id int64) error
}

// PGRepository implements Repository using PostgreSQL. Rules are stored as a
// jsonb array so the ordered list survives round trips intact.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, name, description, rules, created_at, updated_at`

// List returns all roles ordered by name.
func (r *PGRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Get fetches a role by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// Create inserts a new role.
func (r *PGRepository) Create(ctx context.Context, name, description string, rules []permissions.Rule) (Role, error) {
	encoded, err := permissions.EncodeRules(rules)
	if err != nil {
		return Role{}, err
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, rules, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 RETURNING `+roleColumns,
		name, description, encoded)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapConstraint(err)
	}
	return role, nil
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

// Update replaces name, description and rule list.
func (r *PGRepository) Update(ctx context.Context, id int64, name, description string, rules []permissions.Rule) (Role, error) {
	encoded, err := permissions.EncodeRules(rules)
	if err != nil {
		return Role{}, err
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, rules = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+roleColumns,
		id, name, description, encoded)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, mapConstraint(err)
	}
	return role, nil
}

// Delete removes a role by ID. Returns shared.ErrNotFound if nothing was deleted.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("roles: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var rules []byte
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &rules, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, err
		}
		return Role{}, fmt.Errorf("roles: scan: %w", err)
	}
	decoded, err := permissions.DecodeRules(rules)
	if err != nil {
		return Role{}, err
	}
	role.Rules = decoded
	if createdAt.Valid {
		role.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		role.UpdatedAt = updatedAt.Time
	}
	return role, nil
}

var _ Repository = (*PGRepository)(nil)
