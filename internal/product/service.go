package product

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

// Service is the inventory ledger. It is the only writer of Product.Stock.
type Service struct {
	repo    Repository
	timeout time.Duration
}

func NewService(repo Repository, timeout time.Duration) *Service {
	return &Service{repo: repo, timeout: timeout}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Reserve takes amount units out of stock and returns what is left. It fails
// with apperr.ErrInsufficientStock without changing anything when stock is short.
func (s *Service) Reserve(ctx context.Context, productID int, amount int) (int, error) {
	if err := validate(productID, amount); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stock, err := s.repo.Decrement(ctx, productID, amount)
	if err != nil {
		return 0, apperr.FromStorage("product", productID, err)
	}
	log.Debugf("reserved %d of product %d, stock now %d", amount, productID, stock)
	return stock, nil
}

// Release puts amount units back into stock and returns the new stock.
func (s *Service) Release(ctx context.Context, productID int, amount int) (int, error) {
	if err := validate(productID, amount); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stock, err := s.repo.Increment(ctx, productID, amount)
	if err != nil {
		return 0, apperr.FromStorage("product", productID, err)
	}
	log.Debugf("released %d of product %d, stock now %d", amount, productID, stock)
	return stock, nil
}

// Restock is Release for replenishment from the warehouse side.
func (s *Service) Restock(ctx context.Context, productID int, amount int) (int, error) {
	stock, err := s.Release(ctx, productID, amount)
	if err != nil {
		return 0, err
	}
	log.Infof("restocked product %d by %d, stock now %d", productID, amount, stock)
	return stock, nil
}

func (s *Service) GetByID(ctx context.Context, id int) (Product, error) {
	if id <= 0 {
		return Product{}, apperr.Invalid("product", id, "id must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Product{}, apperr.FromStorage("product", id, err)
	}
	return p, nil
}

func (s *Service) ListByIDs(ctx context.Context, ids []int) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	products, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.FromStorage("product", "", err)
	}
	return products, nil
}

func validate(productID int, amount int) error {
	if productID <= 0 {
		return apperr.Invalid("product", productID, "id must be positive")
	}
	if amount <= 0 {
		return apperr.Invalid("product", productID, "amount must be positive")
	}
	return nil
}
