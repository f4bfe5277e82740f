package product

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
	"golang.org/x/sync/errgroup"
)

func newLedger(stock int) (*Service, *InMemoryRepository) {
	repo := NewInMemoryRepository([]Product{{ID: 1, Name: "Kibble", Price: decimal.RequireFromString("10"), Stock: stock}})
	return NewService(repo, time.Second), repo
}

func TestReserveRelease(t *testing.T) {
	s, _ := newLedger(5)
	ctx := context.Background()

	stock, err := s.Reserve(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, stock)

	_, err = s.Reserve(ctx, 1, 3)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	p, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)

	stock, err = s.Release(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, stock)
}

func TestReserve_RejectsNonPositiveAmount(t *testing.T) {
	s, repo := newLedger(5)
	for _, amount := range []int{0, -1} {
		_, err := s.Reserve(context.Background(), 1, amount)
		require.ErrorIs(t, err, apperr.ErrInvalidArgument)
		_, err = s.Release(context.Background(), 1, amount)
		require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}
	p, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, 5, p.Stock)
}

func TestReserve_UnknownProduct(t *testing.T) {
	s, _ := newLedger(5)
	_, err := s.Reserve(context.Background(), 99, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Release(context.Background(), 99, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserve_ConcurrentCallsNeverOversell(t *testing.T) {
	const stock = 10
	s, repo := newLedger(stock)

	var ok, short atomic.Int32
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			_, err := s.Reserve(context.Background(), 1, 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.ErrInsufficientStock):
				short.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	p, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, 0, p.Stock)
	assert.EqualValues(t, stock, ok.Load())
	assert.EqualValues(t, 30, short.Load())
}

func TestRestock(t *testing.T) {
	s, _ := newLedger(0)
	stock, err := s.Restock(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, stock)
}
