package order

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores ord unless an order for the same (CartID, CartVersion)
	// exists, in which case that order is returned with created == false.
	Create(ctx context.Context, ord Order) (saved Order, created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (Order, error)
	// GetByCart returns the order taken from cart state (cartID, version).
	GetByCart(ctx context.Context, cartID uuid.UUID, version int) (Order, error)
	// ListByUser and List return newest orders first.
	ListByUser(ctx context.Context, userID int) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
}

type cartKey struct {
	cartID  uuid.UUID
	version int
}

type InMemoryRepository struct {
	mu     sync.RWMutex
	orders []Order
	byCart map[cartKey]int
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byCart: make(map[cartKey]int)}
}

func copyOrder(o Order) Order {
	items := make([]Item, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

func (r *InMemoryRepository) Create(_ context.Context, ord Order) (Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cartKey{ord.CartID, ord.CartVersion}
	if i, ok := r.byCart[key]; ok {
		return copyOrder(r.orders[i]), false, nil
	}
	r.byCart[key] = len(r.orders)
	r.orders = append(r.orders, copyOrder(ord))
	return copyOrder(ord), true, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id uuid.UUID) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.OrderID == id {
			return copyOrder(o), nil
		}
	}
	return Order{}, apperr.New(apperr.ErrNotFound, "order", id)
}

func (r *InMemoryRepository) GetByCart(_ context.Context, cartID uuid.UUID, version int) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.byCart[cartKey{cartID, version}]; ok {
		return copyOrder(r.orders[i]), nil
	}
	return Order{}, apperr.New(apperr.ErrNotFound, "order", cartID)
}

func (r *InMemoryRepository) ListByUser(_ context.Context, userID int) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) List(_ context.Context) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, copyOrder(o))
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].OrderDate.After(orders[j].OrderDate) })
}
