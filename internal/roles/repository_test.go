package roles

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/rentops/rentops/internal/shared"
)

func TestMapConstraintUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert role: %w", &pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, mapConstraint(wrapped), shared.ErrDuplicate)

	other := errors.New("connection reset")
	require.Equal(t, other, mapConstraint(other))

	notUnique := fmt.Errorf("insert role: %w", &pgconn.PgError{Code: "23503"})
	require.NotErrorIs(t, mapConstraint(notUnique), shared.ErrDuplicate)
}
