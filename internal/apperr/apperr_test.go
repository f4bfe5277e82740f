package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MatchesKindAndCarriesIdentifier(t *testing.T) {
	err := New(ErrInsufficientStock, "product", 7)
	wrapped := fmt.Errorf("add item: %w", err)

	require.ErrorIs(t, wrapped, ErrInsufficientStock)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "product 7: insufficient stock", err.Error())

	var e *Error
	require.ErrorAs(t, wrapped, &e)
	assert.Equal(t, "7", e.ID)
	assert.Equal(t, "insufficient_stock", Code(wrapped))
}

func TestStatus(t *testing.T) {
	cases := map[error]int{
		New(ErrNotFound, "cart", 1):           fiber.StatusNotFound,
		Invalid("product", 1, "amount"):       fiber.StatusBadRequest,
		New(ErrEmptyCart, "cart", 1):          fiber.StatusBadRequest,
		New(ErrExcessRemoval, "cart item", 1): fiber.StatusUnprocessableEntity,
		New(ErrNoActiveCart, "user", 1):       fiber.StatusConflict,
		New(ErrStorageUnavailable, "cart", 1): fiber.StatusServiceUnavailable,
		errors.New("boom"):                    fiber.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, Status(err), err.Error())
	}
}

func TestFromStorage(t *testing.T) {
	assert.NoError(t, FromStorage("cart", 1, nil))

	err := FromStorage("cart", 1, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.True(t, Retryable(err))

	err = FromStorage("cart", 1, &pgconn.PgError{Code: "40001"})
	assert.ErrorIs(t, err, ErrConflict)

	err = FromStorage("product", 3, &pgconn.PgError{Code: "23514"})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	err = FromStorage("product", 3, &pgconn.PgError{Code: "08006"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	already := New(ErrNotFound, "product", 3)
	assert.Same(t, already, FromStorage("cart", 1, already))

	err = FromStorage("cart", 1, errors.New("syntax error"))
	assert.False(t, Retryable(err))
	assert.Equal(t, "internal", Code(err))
}

func TestReconciliationIsNeverRetryable(t *testing.T) {
	cause := errors.Join(New(ErrStorageUnavailable, "cart", 1), errors.New("release failed"))
	err := Wrap(ErrReconciliation, "cart", 1, cause)

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.False(t, Retryable(err))
	assert.Equal(t, fiber.StatusInternalServerError, Status(err))
	assert.Equal(t, "reconciliation", Code(err))
}
