package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a frozen copy of a cart line at conversion time.
type Item struct {
	ProductID int             `json:"productID"`
	Amount    int             `json:"amount"`
	Price     decimal.Decimal `json:"price"`
}

// Order is written once and never updated.
type Order struct {
	OrderID       uuid.UUID       `json:"orderID"`
	UserID        int             `json:"userID"`
	UserEmail     string          `json:"userEmail"`
	Items         []Item          `json:"items"`
	Total         decimal.Decimal `json:"total"`
	OrderDate     time.Time       `json:"orderDate"`
	PaymentMethod string          `json:"paymentMethod"`
	// CartID and CartVersion identify the cart state the order was taken
	// from; the pair is unique so a retried conversion finds this order.
	CartID      uuid.UUID `json:"cartID"`
	CartVersion int       `json:"-"`
}
