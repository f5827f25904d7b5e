package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cronanaut/veronagrow/ledger"
	"github.com/Cronanaut/veronagrow/ledger/storetest"
)

// PG_TEST_DSN points at a disposable database; every table is truncated.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(ctx, `TRUNCATE profiles, cost_entries, diary_entries, usage_records, lots, plant_batches, inventory_items`)
	require.NoError(t, err)
	return s
}

func TestPostgres(t *testing.T) {
	if os.Getenv("PG_TEST_DSN") == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) ledger.TxStore { return newTestStore(t) })
}

func TestMapError(t *testing.T) {
	pgErr := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, ConstraintName: "plant_batches_check", Message: "violates"})
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization failure", pgErr("40001"), ledger.ErrConflict},
		{"deadlock", pgErr("40P01"), ledger.ErrConflict},
		{"unique violation", pgErr("23505"), ledger.ErrConflict},
		{"foreign key violation", pgErr("23503"), ledger.ErrInUse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	t.Run("check violation", func(t *testing.T) {
		var ve *ledger.ValidationError
		require.ErrorAs(t, mapError(pgErr("23514")), &ve)
		assert.Equal(t, "plant_batches_check", ve.Field)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		plain := pgErr("22P02")
		assert.Equal(t, plain, mapError(plain))
		assert.Nil(t, mapError(nil))
	})

	t.Run("no rows", func(t *testing.T) {
		assert.Equal(t, pgx.ErrNoRows, scanError("item", pgx.ErrNoRows))
	})
}
