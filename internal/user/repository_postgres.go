package user

import (
	"context"
	"database/sql"
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
	getUserByIDQuery = `
		SELECT "userId", email, "firstName", "lastName"
		FROM users
		WHERE "userId" = $1
	`
	// served by the unique index on lower(email) created at migration time
	getUserByEmailQuery = `
		SELECT "userId", email, "firstName", "lastName"
		FROM users
		WHERE lower(email) = lower($1)
	`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, getUserByIDQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperr.New(apperr.ErrNotFound, "user", id)
		}
		return User{}, err
	}
	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, getUserByEmailQuery, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperr.New(apperr.ErrNotFound, "user", email)
		}
		return User{}, err
	}
	return user, nil
}

func scanUser(scanner rowScanner) (User, error) {
	var (
		user      User
		firstName sql.NullString
		lastName  sql.NullString
	)
	if err := scanner.Scan(&user.ID, &user.Email, &firstName, &lastName); err != nil {
		return User{}, err
	}
	user.FirstName = firstName.String
	user.LastName = lastName.String
	return user, nil
}
