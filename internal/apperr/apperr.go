// Package apperr holds the failure kinds shared by the ledger, cart and order
// packages. Callers match kinds with errors.Is and read the offending entity
// and identifier from *Error.
package apperr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrExcessRemoval      = errors.New("removal exceeds amount in cart")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNoActiveCart       = errors.New("no active cart")
	ErrConflict           = errors.New("concurrent modification")
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrReconciliation means stock moved but the cart could not be persisted
	// and the compensating stock move failed as well.
	ErrReconciliation = errors.New("stock and cart out of sync")
)

var codes = map[error]string{
	ErrNotFound:           "not_found",
	ErrInvalidArgument:    "invalid_argument",
	ErrInsufficientStock:  "insufficient_stock",
	ErrExcessRemoval:      "excess_removal",
	ErrEmptyCart:          "empty_cart",
	ErrNoActiveCart:       "no_active_cart",
	ErrConflict:           "conflict",
	ErrStorageUnavailable: "storage_unavailable",
	ErrReconciliation:     "reconciliation",
}

// Error is a classified failure. Kind is one of the sentinels above.
type Error struct {
	Kind   error
	Entity string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.ID != "" {
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

func New(kind error, entity string, id any) *Error {
	return &Error{Kind: kind, Entity: entity, ID: idString(id)}
}

func Wrap(kind error, entity string, id any, err error) *Error {
	return &Error{Kind: kind, Entity: entity, ID: idString(id), Err: err}
}

// Invalid reports a validation failure with a human readable reason.
func Invalid(entity string, id any, reason string) *Error {
	return Wrap(ErrInvalidArgument, entity, id, errors.New(reason))
}

func idString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Code returns the stable machine code of err's kind, or "internal".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if c, ok := codes[e.Kind]; ok {
			return c
		}
	}
	for kind, c := range codes {
		if errors.Is(err, kind) {
			return c
		}
	}
	return "internal"
}

// Retryable reports whether the caller may simply try the operation again.
func Retryable(err error) bool {
	if errors.Is(err, ErrReconciliation) {
		return false
	}
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageUnavailable)
}

// Status maps a failure to the HTTP status the boundary handlers answer with.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrReconciliation):
		return fiber.StatusInternalServerError
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrEmptyCart):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrExcessRemoval):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrNoActiveCart), errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// FromStorage classifies an error returned by a repository call. Errors that
// are already classified pass through untouched.
func FromStorage(entity string, id any, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return Wrap(ErrStorageUnavailable, entity, id, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "23505":
			return Wrap(ErrConflict, entity, id, err)
		case pgErr.Code == "23514":
			return Wrap(ErrInsufficientStock, entity, id, err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return Wrap(ErrStorageUnavailable, entity, id, err)
		}
		return fmt.Errorf("%s %s: %w", entity, idString(id), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(ErrStorageUnavailable, entity, id, err)
	}
	return fmt.Errorf("%s %s: %w", entity, idString(id), err)
}
