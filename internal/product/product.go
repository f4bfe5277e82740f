package product

import "github.com/shopspring/decimal"

// Product is the ledger's view of a catalog row. Stock is only ever changed
// through Reserve and Release.
type Product struct {
	ID           int             `json:"productID"`
	Name         string          `json:"productName"`
	Price        decimal.Decimal `json:"productPrice"`
	Stock        int             `json:"stock"`
	Img          *string         `json:"productImg,omitempty"`
	Discontinued bool            `json:"discontinued"`
}

// StockLevel is the public stock read-out.
type StockLevel struct {
	ProductID    int  `json:"productID"`
	Stock        int  `json:"stock"`
	Discontinued bool `json:"discontinued"`
}
