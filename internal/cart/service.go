package cart

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
	"github.com/wichananm65/pet-shop-fulfillment/internal/keylock"
	"github.com/wichananm65/pet-shop-fulfillment/internal/product"
	"github.com/wichananm65/pet-shop-fulfillment/internal/user"
)

// Ledger moves stock. product.Service implements it.
type Ledger interface {
	Reserve(ctx context.Context, productID int, amount int) (int, error)
	Release(ctx context.Context, productID int, amount int) (int, error)
}

// Catalog gives read access to products for pricing and display.
type Catalog interface {
	GetByID(ctx context.Context, id int) (product.Product, error)
	ListByIDs(ctx context.Context, ids []int) ([]product.Product, error)
}

// Directory resolves users by email.
type Directory interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

// PlacedOrders reports whether a cart state was already converted into an
// order. order.PlacedLookup implements it.
type PlacedOrders interface {
	PlacedFor(ctx context.Context, cartID uuid.UUID, version int) (bool, error)
}

// Service is the cart manager. Every mutation of one user's cart runs under
// that user's lock; different users never wait on each other.
type Service struct {
	repo    Repository
	ledger  Ledger
	catalog Catalog
	users   Directory
	placed  PlacedOrders
	locks   *keylock.Locker[int]
	timeout time.Duration
	now     func() time.Time
}

// placed may be nil when nothing converts carts into orders.
func NewService(repo Repository, ledger Ledger, catalog Catalog, users Directory, placed PlacedOrders, timeout time.Duration) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledger,
		catalog: catalog,
		users:   users,
		placed:  placed,
		locks:   keylock.New[int](),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// compensationCtx outlives the caller's deadline so a rollback is not skipped
// just because the request ran out of time.
func (s *Service) compensationCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return s.withTimeout(context.WithoutCancel(ctx))
}

func (s *Service) lock(ctx context.Context, userID int) (func(), error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "cart", userID, err)
	}
	return unlock, nil
}

func validUser(userID int) error {
	if userID <= 0 {
		return apperr.Invalid("user", userID, "id must be positive")
	}
	return nil
}

// GetOrCreate returns the user's active cart, reactivating a disabled one or
// creating a new one when needed.
func (s *Service) GetOrCreate(ctx context.Context, userID int) (Cart, error) {
	if err := validUser(userID); err != nil {
		return Cart{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	defer unlock()

	return s.openLocked(ctx, userID)
}

func (s *Service) openLocked(ctx context.Context, userID int) (Cart, error) {
	var existing *Cart
	stored, err := s.repo.FindByUser(ctx, userID)
	switch {
	case err == nil:
		settled, _, err := s.settleLocked(ctx, stored)
		if err != nil {
			return Cart{}, err
		}
		existing = &settled
	case !errors.Is(err, apperr.ErrNotFound):
		return Cart{}, apperr.FromStorage("cart", userID, err)
	}

	c, changed, err := open(existing, userID, s.now())
	if err != nil {
		return Cart{}, err
	}
	if !changed {
		return c, nil
	}
	saved, err := s.repo.Save(ctx, c)
	if err != nil {
		return Cart{}, apperr.FromStorage("cart", userID, err)
	}
	if existing == nil {
		log.Infof("created cart %s for user %d", saved.ID, userID)
	} else {
		log.Infof("reactivated cart %s for user %d", saved.ID, userID)
	}
	return saved, nil
}

// mutableLocked is activeLocked for operations that move stock. A cart whose
// current state already became an order is retired first and reads as no
// active cart, so its sold lines are never released.
func (s *Service) mutableLocked(ctx context.Context, userID int) (Cart, error) {
	c, err := s.activeLocked(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if _, retired, err := s.settleLocked(ctx, c); err != nil {
		return Cart{}, err
	} else if retired {
		return Cart{}, apperr.New(apperr.ErrNoActiveCart, "user", userID)
	}
	return c, nil
}

// settleLocked finishes a conversion whose cart retirement did not persist:
// if an order exists for c's (ID, Version), c is emptied and disabled without
// touching stock. It reports whether that happened.
func (s *Service) settleLocked(ctx context.Context, c Cart) (Cart, bool, error) {
	if s.placed == nil || StateOf(&c) != StateActive {
		return c, false, nil
	}
	placed, err := s.placed.PlacedFor(ctx, c.ID, c.Version)
	if err != nil {
		return Cart{}, false, apperr.FromStorage("order", c.ID, err)
	}
	if !placed {
		return c, false, nil
	}
	saved, err := s.retireLocked(ctx, c)
	if err != nil {
		return Cart{}, false, err
	}
	log.Warnf("user %d: cart %s version %d was already ordered; retired it without releasing stock", c.UserID, c.ID, c.Version)
	return saved, true, nil
}

func (s *Service) retireLocked(ctx context.Context, c Cart) (Cart, error) {
	retired := c.clone()
	retired.Items = []Item{}
	retired.recompute()
	if err := disable(&retired, s.now()); err != nil {
		return Cart{}, err
	}
	saved, err := s.repo.Save(ctx, retired)
	if err != nil {
		return Cart{}, apperr.FromStorage("cart", c.ID, err)
	}
	return saved, nil
}

func (s *Service) activeLocked(ctx context.Context, userID int) (Cart, error) {
	c, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Cart{}, apperr.New(apperr.ErrNoActiveCart, "user", userID)
		}
		return Cart{}, apperr.FromStorage("cart", userID, err)
	}
	if StateOf(&c) != StateActive {
		return Cart{}, apperr.New(apperr.ErrNoActiveCart, "user", userID)
	}
	return c, nil
}

// AddItem reserves amount units of productID and adds them to the user's
// active cart. The line price is refreshed to the current catalog price.
// When the cart cannot be persisted the reservation is released again.
func (s *Service) AddItem(ctx context.Context, userID int, productID int, amount int, contactEmail string) (Cart, error) {
	if err := validUser(userID); err != nil {
		return Cart{}, err
	}
	if productID <= 0 {
		return Cart{}, apperr.Invalid("product", productID, "id must be positive")
	}
	if amount <= 0 {
		return Cart{}, apperr.Invalid("product", productID, "amount must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	defer unlock()

	c, err := s.openLocked(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if p.Discontinued {
		return Cart{}, apperr.Invalid("product", productID, "product is discontinued")
	}

	if _, err := s.ledger.Reserve(ctx, productID, amount); err != nil {
		return Cart{}, err
	}

	c = c.clone()
	if i := c.itemIndex(productID); i >= 0 {
		c.Items[i].Amount += amount
		c.Items[i].Price = p.Price
		c.Items[i].Title = p.Name
		c.Items[i].Img = p.Img
	} else {
		c.Items = append(c.Items, Item{ProductID: productID, Amount: amount, Price: p.Price, Title: p.Name, Img: p.Img})
	}
	c.recompute()
	if contactEmail != "" {
		c.Email = contactEmail
	}
	c.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, c)
	if err != nil {
		saveErr := apperr.FromStorage("cart", c.ID, err)
		cctx, ccancel := s.compensationCtx(ctx)
		defer ccancel()
		if _, rerr := s.ledger.Release(cctx, productID, amount); rerr != nil {
			log.Errorf("user %d: cart save failed after reserving %d of product %d and release failed: %v", userID, amount, productID, rerr)
			return Cart{}, apperr.Wrap(apperr.ErrReconciliation, "cart", c.ID, errors.Join(saveErr, rerr))
		}
		log.Warnf("user %d: cart save failed, released %d of product %d: %v", userID, amount, productID, saveErr)
		return Cart{}, saveErr
	}
	return saved, nil
}

// RemoveItem takes amount units of productID out of the cart and returns them
// to stock.
func (s *Service) RemoveItem(ctx context.Context, userID int, productID int, amount int) (Cart, error) {
	if amount <= 0 {
		return Cart{}, apperr.Invalid("cart item", productID, "amount must be positive")
	}
	return s.remove(ctx, userID, productID, amount)
}

// RemoveLine removes the whole line for productID.
func (s *Service) RemoveLine(ctx context.Context, userID int, productID int) (Cart, error) {
	return s.remove(ctx, userID, productID, 0)
}

// remove treats amount 0 as the whole line.
func (s *Service) remove(ctx context.Context, userID int, productID int, amount int) (Cart, error) {
	if err := validUser(userID); err != nil {
		return Cart{}, err
	}
	if productID <= 0 {
		return Cart{}, apperr.Invalid("product", productID, "id must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	defer unlock()

	c, err := s.mutableLocked(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	i := c.itemIndex(productID)
	if i < 0 {
		return Cart{}, apperr.New(apperr.ErrNotFound, "cart item", productID)
	}
	held := c.Items[i].Amount
	if amount == 0 {
		amount = held
	}
	if amount > held {
		return Cart{}, apperr.New(apperr.ErrExcessRemoval, "cart item", productID)
	}

	if _, err := s.ledger.Release(ctx, productID, amount); err != nil {
		return Cart{}, err
	}

	c = c.clone()
	if amount == held {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Amount -= amount
	}
	c.recompute()
	c.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, c)
	if err != nil {
		saveErr := apperr.FromStorage("cart", c.ID, err)
		cctx, ccancel := s.compensationCtx(ctx)
		defer ccancel()
		if _, rerr := s.ledger.Reserve(cctx, productID, amount); rerr != nil {
			log.Errorf("user %d: cart save failed after releasing %d of product %d and re-reserve failed: %v", userID, amount, productID, rerr)
			return Cart{}, apperr.Wrap(apperr.ErrReconciliation, "cart", c.ID, errors.Join(saveErr, rerr))
		}
		log.Warnf("user %d: cart save failed, re-reserved %d of product %d: %v", userID, amount, productID, saveErr)
		return Cart{}, saveErr
	}
	return saved, nil
}

// Clear returns every line's stock and empties the cart. Clearing an empty
// cart changes nothing.
func (s *Service) Clear(ctx context.Context, userID int) (Cart, error) {
	return s.empty(ctx, userID, false)
}

// Disable clears the cart and moves it to the disabled state.
func (s *Service) Disable(ctx context.Context, userID int) (Cart, error) {
	return s.empty(ctx, userID, true)
}

func (s *Service) empty(ctx context.Context, userID int, retire bool) (Cart, error) {
	if err := validUser(userID); err != nil {
		return Cart{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	defer unlock()

	c, err := s.mutableLocked(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if len(c.Items) == 0 && !retire {
		return c, nil
	}

	released := c.Items
	if err := s.releaseAll(ctx, released); err != nil {
		return Cart{}, err
	}

	c = c.clone()
	c.Items = []Item{}
	c.recompute()
	c.UpdatedAt = s.now()
	if retire {
		if err := disable(&c, s.now()); err != nil {
			return Cart{}, err
		}
	}

	saved, err := s.repo.Save(ctx, c)
	if err != nil {
		saveErr := apperr.FromStorage("cart", c.ID, err)
		if rerr := s.reserveAll(ctx, released); rerr != nil {
			log.Errorf("user %d: cart save failed after releasing %d lines and re-reserve failed: %v", userID, len(released), rerr)
			return Cart{}, apperr.Wrap(apperr.ErrReconciliation, "cart", c.ID, errors.Join(saveErr, rerr))
		}
		log.Warnf("user %d: cart save failed, re-reserved %d lines: %v", userID, len(released), saveErr)
		return Cart{}, saveErr
	}
	if retire {
		log.Infof("disabled cart %s for user %d", saved.ID, userID)
	}
	return saved, nil
}

// releaseAll releases every line. If one release fails, the lines already
// released are reserved again before returning the failure.
func (s *Service) releaseAll(ctx context.Context, items []Item) error {
	for i, it := range items {
		if _, err := s.ledger.Release(ctx, it.ProductID, it.Amount); err != nil {
			if rerr := s.reserveAll(ctx, items[:i]); rerr != nil {
				log.Errorf("partial release of %d lines could not be undone: %v", i, rerr)
				return apperr.Wrap(apperr.ErrReconciliation, "product", it.ProductID, errors.Join(err, rerr))
			}
			return err
		}
	}
	return nil
}

func (s *Service) reserveAll(ctx context.Context, items []Item) error {
	cctx, cancel := s.compensationCtx(ctx)
	defer cancel()
	var errs []error
	for _, it := range items {
		if _, err := s.ledger.Reserve(cctx, it.ProductID, it.Amount); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Checkout hands the user's active cart to place and, once place succeeds,
// empties and disables the cart without moving stock: the stock was taken
// when the items were added. place must make its result durable before it
// returns nil.
func (s *Service) Checkout(ctx context.Context, userID int, place func(ctx context.Context, c Cart) error) (Cart, error) {
	if err := validUser(userID); err != nil {
		return Cart{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	defer unlock()

	c, err := s.activeLocked(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if err := place(ctx, c.clone()); err != nil {
		return Cart{}, err
	}
	return s.retireLocked(ctx, c)
}

// GetByUser returns the user's active cart for display, or nil if there is none.
func (s *Service) GetByUser(ctx context.Context, userID int) (*View, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.FromStorage("cart", userID, err)
	}
	if !c.Enabled {
		return nil, nil
	}
	views, err := s.enrich(ctx, []Cart{c})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// GetByEmail resolves the user behind email and returns their active cart, or
// nil when no user has that email or the user has no active cart.
func (s *Service) GetByEmail(ctx context.Context, email string) (*View, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetByUser(ctx, u.ID)
}

// ListAll returns every stored cart, active or disabled.
func (s *Service) ListAll(ctx context.Context) ([]View, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	carts, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.FromStorage("cart", "", err)
	}
	return s.enrich(ctx, carts)
}

// enrich attaches live catalog data. It never writes.
func (s *Service) enrich(ctx context.Context, carts []Cart) ([]View, error) {
	seen := map[int]struct{}{}
	ids := make([]int, 0)
	for _, c := range carts {
		for _, it := range c.Items {
			if _, ok := seen[it.ProductID]; !ok {
				seen[it.ProductID] = struct{}{}
				ids = append(ids, it.ProductID)
			}
		}
	}
	live := map[int]product.Product{}
	if len(ids) > 0 {
		products, err := s.catalog.ListByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			live[p.ID] = p
		}
	}

	out := make([]View, 0, len(carts))
	for _, c := range carts {
		v := View{
			ID:         c.ID,
			UserID:     c.UserID,
			Email:      c.Email,
			Enabled:    c.Enabled,
			Items:      make([]ViewItem, 0, len(c.Items)),
			TotalPrice: c.TotalPrice,
			UpdatedAt:  c.UpdatedAt,
		}
		for _, it := range c.Items {
			vi := ViewItem{ProductID: it.ProductID, Amount: it.Amount, Price: it.Price, LivePrice: it.Price, Title: it.Title, Img: it.Img}
			if p, ok := live[it.ProductID]; ok {
				vi.LivePrice = p.Price
				vi.Title = p.Name
				vi.Img = p.Img
				vi.Discontinued = p.Discontinued
			}
			v.Items = append(v.Items, vi)
		}
		out = append(out, v)
	}
	return out, nil
}

// Total is exposed for callers that want to check a cart against its items.
func Total(items []Item) decimal.Decimal {
	c := Cart{Items: items}
	c.recompute()
	return c.TotalPrice
}
