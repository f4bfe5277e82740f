package user

import (
	"context"
	"strings"
	"time"

	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

// Service resolves user identity for cart and order ownership.
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

func (s *Service) GetByID(ctx context.Context, id int) (User, error) {
	if id <= 0 {
		return User{}, apperr.Invalid("user", id, "id must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.repo.GetByID(ctx, id)
	return u, apperr.FromStorage("user", id, err)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, apperr.Invalid("user", email, "malformed email")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.repo.GetByEmail(ctx, email)
	return u, apperr.FromStorage("user", email, err)
}
