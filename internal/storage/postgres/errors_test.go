package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"quote-screener/internal/storage"
)

func TestWrapErr(t *testing.T) {
	assert.NoError(t, wrapErr("op", nil))

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "instruments_pkey"}
	err := wrapErr("insert instrument TCS", dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Contains(t, err.Error(), "instruments_pkey")

	err = wrapErr("get instrument X", pgx.ErrNoRows)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	other := &pgconn.PgError{Code: "42P01"}
	err = wrapErr("get all", other)
	assert.ErrorIs(t, err, other)
	assert.False(t, errors.Is(err, storage.ErrDuplicateKey))
}
