package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	orderColumns = `order_id, user_id, user_email, items, total, order_date, payment_method, cart_id, cart_version`

	insertOrderQuery = `
		INSERT INTO orders (order_id, user_id, user_email, items, total, order_date, payment_method, cart_id, cart_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cart_id, cart_version) DO NOTHING
		RETURNING order_id
	`
	getOrderByCartQuery   = `SELECT ` + orderColumns + ` FROM orders WHERE cart_id = $1 AND cart_version = $2`
	getOrderByIDQuery     = `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	listOrdersByUserQuery = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY order_date DESC`
	listOrdersQuery       = `SELECT ` + orderColumns + ` FROM orders ORDER BY order_date DESC`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, ord Order) (Order, bool, error) {
	itemsJSON, err := json.Marshal(ord.Items)
	if err != nil {
		return Order{}, false, err
	}

	var id uuid.UUID
	err = r.db.QueryRowContext(ctx, insertOrderQuery,
		ord.OrderID, ord.UserID, ord.UserEmail, string(itemsJSON), ord.Total, ord.OrderDate, ord.PaymentMethod, ord.CartID, ord.CartVersion,
	).Scan(&id)
	switch {
	case err == nil:
		ord.OrderID = id
		return ord, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Order{}, false, err
	}

	// the conflict target matched: this cart state was already converted
	existing, err := r.GetByCart(ctx, ord.CartID, ord.CartVersion)
	if err != nil {
		return Order{}, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) GetByCart(ctx context.Context, cartID uuid.UUID, version int) (Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, getOrderByCartQuery, cartID, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, apperr.New(apperr.ErrNotFound, "order", cartID)
		}
		return Order{}, err
	}
	return o, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, getOrderByIDQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, apperr.New(apperr.ErrNotFound, "order", id)
		}
		return Order{}, err
	}
	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	return r.list(ctx, listOrdersByUserQuery, userID)
}

func (r *PostgresRepository) List(ctx context.Context) ([]Order, error) {
	return r.list(ctx, listOrdersQuery)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o         Order
		itemsJSON []byte
	)
	if err := row.Scan(&o.OrderID, &o.UserID, &o.UserEmail, &itemsJSON, &o.Total, &o.OrderDate, &o.PaymentMethod, &o.CartID, &o.CartVersion); err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return Order{}, err
	}
	return o, nil
}
