package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

// PlacedLookup lets the cart manager ask whether a cart state was already
// converted, without depending on this package.
type PlacedLookup struct {
	repo Repository
}

func NewPlacedLookup(repo Repository) PlacedLookup {
	return PlacedLookup{repo: repo}
}

func (l PlacedLookup) PlacedFor(ctx context.Context, cartID uuid.UUID, version int) (bool, error) {
	_, err := l.repo.GetByCart(ctx, cartID, version)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
