package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	cartColumns = `cart_id, user_id, email, enabled, items, total_price, version, created_at, updated_at`

	findCartByUserQuery = `SELECT ` + cartColumns + ` FROM cart WHERE user_id = $1`
	listCartsQuery      = `SELECT ` + cartColumns + ` FROM cart ORDER BY user_id`

	insertCartQuery = `
		INSERT INTO cart (cart_id, user_id, email, enabled, items, total_price, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING version
	`
	// compare-and-set on version: a concurrent writer in another process
	// makes this match zero rows
	updateCartQuery = `
		UPDATE cart
		SET email = $1, enabled = $2, items = $3, total_price = $4, version = version + 1, updated_at = $5
		WHERE cart_id = $6 AND version = $7
		RETURNING version
	`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID int) (Cart, error) {
	c, err := scanCart(r.db.QueryRowContext(ctx, findCartByUserQuery, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cart{}, apperr.New(apperr.ErrNotFound, "cart", userID)
		}
		return Cart{}, err
	}
	return c, nil
}

func (r *PostgresRepository) Save(ctx context.Context, c Cart) (Cart, error) {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return Cart{}, err
	}

	var version int
	if c.Version == 0 {
		err = r.db.QueryRowContext(ctx, insertCartQuery,
			c.ID, c.UserID, c.Email, c.Enabled, string(itemsJSON), c.TotalPrice, c.CreatedAt, c.UpdatedAt,
		).Scan(&version)
	} else {
		err = r.db.QueryRowContext(ctx, updateCartQuery,
			c.Email, c.Enabled, string(itemsJSON), c.TotalPrice, c.UpdatedAt, c.ID, c.Version,
		).Scan(&version)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cart{}, apperr.New(apperr.ErrConflict, "cart", c.ID)
		}
		return Cart{}, err
	}
	c.Version = version
	return c, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Cart, error) {
	rows, err := r.db.QueryContext(ctx, listCartsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Cart, 0)
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCart(row rowScanner) (Cart, error) {
	var (
		c         Cart
		email     sql.NullString
		itemsJSON []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &email, &c.Enabled, &itemsJSON, &c.TotalPrice, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Cart{}, err
	}
	c.Email = email.String
	c.Items = []Item{}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
			return Cart{}, err
		}
		if c.Items == nil {
			c.Items = []Item{}
		}
	}
	return c, nil
}
