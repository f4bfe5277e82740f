package product

import (
	"context"
	"sync"

	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

type Repository interface {
	GetByID(ctx context.Context, id int) (Product, error)
	// ListByIDs returns the products found, in the order of ids. Missing ids
	// are skipped.
	ListByIDs(ctx context.Context, ids []int) ([]Product, error)
	// Decrement lowers stock by amount only if stock >= amount, as a single
	// conditional update, and returns the new stock.
	Decrement(ctx context.Context, id int, amount int) (int, error)
	Increment(ctx context.Context, id int, amount int) (int, error)
}

// InMemoryRepository is used for tests and STORAGE=memory runs. The mutex makes
// the check and the decrement one step, like the conditional UPDATE in
// PostgresRepository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	storage map[int]Product
}

func NewInMemoryRepository(seed []Product) *InMemoryRepository {
	r := &InMemoryRepository{storage: make(map[int]Product, len(seed))}
	for _, p := range seed {
		r.storage[p.ID] = p
	}
	return r
}

func (r *InMemoryRepository) GetByID(_ context.Context, id int) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.storage[id]
	if !ok {
		return Product{}, apperr.New(apperr.ErrNotFound, "product", id)
	}
	return p, nil
}

func (r *InMemoryRepository) ListByIDs(_ context.Context, ids []int) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.storage[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) Decrement(_ context.Context, id int, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.storage[id]
	if !ok {
		return 0, apperr.New(apperr.ErrNotFound, "product", id)
	}
	if p.Stock < amount {
		return p.Stock, apperr.New(apperr.ErrInsufficientStock, "product", id)
	}
	p.Stock -= amount
	r.storage[id] = p
	return p.Stock, nil
}

func (r *InMemoryRepository) Increment(_ context.Context, id int, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.storage[id]
	if !ok {
		return 0, apperr.New(apperr.ErrNotFound, "product", id)
	}
	p.Stock += amount
	r.storage[id] = p
	return p.Stock, nil
}

// Put inserts or replaces a product. Used for seeding.
func (r *InMemoryRepository) Put(p Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[p.ID] = p
}
