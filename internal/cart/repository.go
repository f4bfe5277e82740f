package cart

import (
	"context"
	"sort"
	"sync"

	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

// Repository persists carts, one row per user.
type Repository interface {
	// FindByUser returns the user's cart in whatever state, or ErrNotFound.
	FindByUser(ctx context.Context, userID int) (Cart, error)
	// Save inserts c when c.Version is 0 and otherwise updates it only if the
	// stored version still equals c.Version. Losing either race is ErrConflict.
	// The returned cart carries the new version.
	Save(ctx context.Context, c Cart) (Cart, error)
	List(ctx context.Context) ([]Cart, error)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu     sync.RWMutex
	byUser map[int]Cart
}

func NewInMemoryRepository(seed []Cart) *InMemoryRepository {
	r := &InMemoryRepository{byUser: make(map[int]Cart, len(seed))}
	for _, c := range seed {
		if c.Version == 0 {
			c.Version = 1
		}
		r.byUser[c.UserID] = c.clone()
	}
	return r
}

func (r *InMemoryRepository) FindByUser(_ context.Context, userID int) (Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	if !ok {
		return Cart{}, apperr.New(apperr.ErrNotFound, "cart", userID)
	}
	return c.clone(), nil
}

func (r *InMemoryRepository) Save(_ context.Context, c Cart) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byUser[c.UserID]
	switch {
	case c.Version == 0 && ok:
		return Cart{}, apperr.New(apperr.ErrConflict, "cart", c.UserID)
	case c.Version != 0 && (!ok || stored.Version != c.Version):
		return Cart{}, apperr.New(apperr.ErrConflict, "cart", c.ID)
	}
	c.Version++
	r.byUser[c.UserID] = c.clone()
	return c, nil
}

func (r *InMemoryRepository) List(_ context.Context) ([]Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Cart, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
