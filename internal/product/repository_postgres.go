package product

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	getProductByIDQuery = `
		SELECT product_id, product_name, product_price, stock, product_pic, discontinued
		FROM product
		WHERE product_id = $1
	`
	listProductsByIDsQuery = `
		SELECT product_id, product_name, product_price, stock, product_pic, discontinued
		FROM product
		WHERE product_id = ANY($1::int[])
		ORDER BY array_position($1::int[], product_id)
	`
	// stock >= $1 in the WHERE clause is what keeps concurrent reservations
	// from overselling: the row lock taken by UPDATE re-evaluates it.
	reserveStockQuery = `
		UPDATE product
		SET stock = stock - $1, updated_at = now()
		WHERE product_id = $2 AND stock >= $1
		RETURNING stock
	`
	releaseStockQuery = `
		UPDATE product
		SET stock = stock + $1, updated_at = now()
		WHERE product_id = $2
		RETURNING stock
	`
	productExistsQuery = `SELECT EXISTS (SELECT 1 FROM product WHERE product_id = $1)`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, getProductByIDQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, apperr.New(apperr.ErrNotFound, "product", id)
		}
		return Product{}, err
	}
	return p, nil
}

func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []int) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	rows, err := r.db.QueryContext(ctx, listProductsByIDsQuery, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Decrement(ctx context.Context, id int, amount int) (int, error) {
	var stock int
	err := r.db.QueryRowContext(ctx, reserveStockQuery, amount, id).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	// no row matched: either the product is missing or stock was short
	var exists bool
	if err := r.db.QueryRowContext(ctx, productExistsQuery, id).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, apperr.New(apperr.ErrNotFound, "product", id)
	}
	return 0, apperr.New(apperr.ErrInsufficientStock, "product", id)
}

func (r *PostgresRepository) Increment(ctx context.Context, id int, amount int) (int, error) {
	var stock int
	if err := r.db.QueryRowContext(ctx, releaseStockQuery, amount, id).Scan(&stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.New(apperr.ErrNotFound, "product", id)
		}
		return 0, err
	}
	return stock, nil
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p   Product
		img sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &img, &p.Discontinued); err != nil {
		return Product{}, err
	}
	if img.Valid {
		p.Img = &img.String
	}
	return p, nil
}
