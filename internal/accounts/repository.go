package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/shared"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	FindByLogin(ctx context.Context, login string) (Account, error)
	Create(ctx context.Context, account Account) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
	SetOverrides(ctx context.Context, id int64, overrides permissions.Matrix) (Account, error)
	SetActive(ctx context.Context, id int64, active bool) (Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `a.id, a.login, a.display_name, a.password_hash, a.role_id, COALESCE(r.name, ''), a.is_admin, a.active, a.overrides, a.created_at, a.updated_at`

const accountSelect = `SELECT ` + accountColumns + ` FROM accounts a LEFT JOIN roles r ON r.id = a.role_id`

// List returns all accounts ordered by login.
func (r *PGRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, accountSelect+` ORDER BY a.login`)
	if err != nil {
		return nil, fmt.Errorf("accounts: list: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Get fetches an account by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx, accountSelect+` WHERE a.id = $1`, id)
	return mapNotFound(scanAccount(row))
}

// FindByLogin fetches an account by its login name.
func (r *PGRepository) FindByLogin(ctx context.Context, login string) (Account, error) {
	row := r.pool.QueryRow(ctx, accountSelect+` WHERE a.login = $1`, login)
	return mapNotFound(scanAccount(row))
}

// Create inserts a new account.
func (r *PGRepository) Create(ctx context.Context, account Account) (Account, error) {
	overrides, err := encodeOverrides(account.Overrides)
	if err != nil {
		return Account{}, err
	}
	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO accounts (login, display_name, password_hash, role_id, is_admin, active, overrides, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 RETURNING id`,
		account.Login, account.DisplayName, account.PasswordHash, account.RoleID,
		account.IsAdmin, account.Active, overrides).Scan(&id)
	if err != nil {
		return Account{}, mapConstraint(err)
	}
	return r.Get(ctx, id)
}

// Update replaces the mutable profile fields.
func (r *PGRepository) Update(ctx context.Context, account Account) (Account, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET display_name = $2, role_id = $3, is_admin = $4, updated_at = NOW() WHERE id = $1`,
		account.ID, account.DisplayName, account.RoleID, account.IsAdmin)
	if err != nil {
		return Account{}, mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return Account{}, shared.ErrNotFound
	}
	return r.Get(ctx, account.ID)
}

// SetOverrides replaces the per-account override matrix.
func (r *PGRepository) SetOverrides(ctx context.Context, id int64, overrides permissions.Matrix) (Account, error) {
	encoded, err := encodeOverrides(overrides)
	if err != nil {
		return Account{}, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET overrides = $2, updated_at = NOW() WHERE id = $1`, id, encoded)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: set overrides: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Account{}, shared.ErrNotFound
	}
	return r.Get(ctx, id)
}

// SetActive flips the active flag.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) (Account, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Account{}, shared.ErrNotFound
	}
	return r.Get(ctx, id)
}

func scanAccount(row pgx.Row) (Account, error) {
	var account Account
	var overrides []byte
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(
		&account.ID,
		&account.Login,
		&account.DisplayName,
		&account.PasswordHash,
		&account.RoleID,
		&account.RoleName,
		&account.IsAdmin,
		&account.Active,
		&overrides,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("accounts: scan: %w", err)
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &account.Overrides); err != nil {
			return Account{}, fmt.Errorf("accounts: decode overrides: %w", err)
		}
	}
	if createdAt.Valid {
		account.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		account.UpdatedAt = updatedAt.Time
	}
	return account, nil
}

func encodeOverrides(overrides permissions.Matrix) ([]byte, error) {
	if overrides == nil {
		overrides = permissions.Matrix{}
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		return nil, fmt.Errorf("accounts: encode overrides: %w", err)
	}
	return data, nil
}

func mapNotFound(account Account, err error) (Account, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	return account, err
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}
