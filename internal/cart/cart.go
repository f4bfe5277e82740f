package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one cart line. Price is the captured price: the catalog price at
// the moment of the latest reservation for this line.
type Item struct {
	ProductID int             `json:"productID"`
	Amount    int             `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Title     string          `json:"title"`
	Img       *string         `json:"productImg,omitempty"`
}

// Cart is a user's cart. A user owns at most one cart row; it moves between
// the active and disabled states and keeps its ID.
type Cart struct {
	ID         uuid.UUID       `json:"cartID"`
	UserID     int             `json:"userID"`
	Email      string          `json:"email,omitempty"`
	Enabled    bool            `json:"enabled"`
	Items      []Item          `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	// Version is bumped by every save; saves are conditional on it.
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// recompute sets TotalPrice from the items. It never adjusts incrementally.
func (c *Cart) recompute() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Amount))))
	}
	c.TotalPrice = total
}

func (c *Cart) itemIndex(productID int) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// clone returns a copy whose Items can be mutated without touching c.
func (c Cart) clone() Cart {
	items := make([]Item, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}

// ViewItem is a cart line as displayed: the captured contract price plus the
// live catalog price and display fields read at request time.
type ViewItem struct {
	ProductID    int             `json:"productID"`
	Amount       int             `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	LivePrice    decimal.Decimal `json:"livePrice"`
	Title        string          `json:"title"`
	Img          *string         `json:"productImg,omitempty"`
	Discontinued bool            `json:"discontinued"`
}

type View struct {
	ID         uuid.UUID       `json:"cartID"`
	UserID     int             `json:"userID"`
	Email      string          `json:"email,omitempty"`
	Enabled    bool            `json:"enabled"`
	Items      []ViewItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
