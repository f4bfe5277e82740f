package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
	"github.com/wichananm65/pet-shop-fulfillment/internal/cart"
)

// Checkout hands the locked active cart to place and retires it once place
// succeeds. cart.Service implements it.
type Checkout interface {
	Checkout(ctx context.Context, userID int, place func(ctx context.Context, c cart.Cart) error) (cart.Cart, error)
}

// Publisher announces placed orders to downstream consumers.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, ord Order) error
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderPlaced(context.Context, Order) error { return nil }

// NopPublisher drops every event. Used when no broker is configured.
var NopPublisher Publisher = nopPublisher{}

// Service is the order converter.
type Service struct {
	repo      Repository
	carts     Checkout
	publisher Publisher
	timeout   time.Duration
	now       func() time.Time
}

func NewService(repo Repository, carts Checkout, publisher Publisher, timeout time.Duration) *Service {
	if publisher == nil {
		publisher = NopPublisher
	}
	return &Service{
		repo:      repo,
		carts:     carts,
		publisher: publisher,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Convert turns the user's active cart into an order. Stock stays reserved:
// the reservation taken when items were added becomes the sale.
//
// The order row is keyed by the cart's (ID, version). If the cart cannot be
// retired after the order is written, the cart keeps its version and a retry
// finds the same order instead of creating a second one.
func (s *Service) Convert(ctx context.Context, userID int, userEmail string, paymentMethod string) (Order, error) {
	if userID <= 0 {
		return Order{}, apperr.Invalid("user", userID, "id must be positive")
	}
	paymentMethod = strings.TrimSpace(paymentMethod)
	if paymentMethod == "" {
		return Order{}, apperr.Invalid("order", userID, "paymentMethod is required")
	}

	var (
		placed  Order
		created bool
	)
	_, err := s.carts.Checkout(ctx, userID, func(ctx context.Context, c cart.Cart) error {
		if len(c.Items) == 0 {
			return apperr.New(apperr.ErrEmptyCart, "cart", c.ID)
		}
		if total := cart.Total(c.Items); !total.Equal(c.TotalPrice) {
			return fmt.Errorf("cart %s: total %s does not match items %s", c.ID, c.TotalPrice, total)
		}

		email := strings.TrimSpace(userEmail)
		if email == "" {
			email = c.Email
		}
		ord := Order{
			OrderID:       uuid.New(),
			UserID:        userID,
			UserEmail:     email,
			Items:         make([]Item, 0, len(c.Items)),
			Total:         c.TotalPrice,
			OrderDate:     s.now(),
			PaymentMethod: paymentMethod,
			CartID:        c.ID,
			CartVersion:   c.Version,
		}
		for _, it := range c.Items {
			ord.Items = append(ord.Items, Item{ProductID: it.ProductID, Amount: it.Amount, Price: it.Price})
		}

		saved, isNew, err := s.repo.Create(ctx, ord)
		if err != nil {
			return apperr.FromStorage("order", ord.OrderID, err)
		}
		placed, created = saved, isNew
		return nil
	})
	if err != nil {
		if placed.OrderID != uuid.Nil {
			log.Warnf("order %s written but cart of user %d not retired: %v", placed.OrderID, userID, err)
		}
		return Order{}, err
	}
	if !created {
		log.Infof("order %s: resumed conversion for user %d", placed.OrderID, userID)
	}

	// the order is durable at this point; a broker outage must not fail it
	if err := s.publisher.PublishOrderPlaced(ctx, placed); err != nil {
		log.Errorf("order %s: publish OrderPlaced: %v", placed.OrderID, err)
	}
	return placed, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	if userID <= 0 {
		return nil, apperr.Invalid("user", userID, "id must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.FromStorage("order", userID, err)
	}
	return orders, nil
}

func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.FromStorage("order", "", err)
	}
	return orders, nil
}

// Get returns one order. Orders of other users read as not found unless the
// caller is an admin.
func (s *Service) Get(ctx context.Context, userID int, orderID uuid.UUID, admin bool) (Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ord, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, apperr.FromStorage("order", orderID, err)
	}
	if !admin && ord.UserID != userID {
		return Order{}, apperr.New(apperr.ErrNotFound, "order", orderID)
	}
	return ord, nil
}
