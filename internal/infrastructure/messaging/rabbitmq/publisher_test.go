package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/pet-shop-fulfillment/internal/order"
)

type fakeChannel struct {
	mu        sync.Mutex
	closed    bool
	published []amqp.Publishing
	keys      []string
	failWith  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newFakePool(t *testing.T, size int) (*ChannelPool, *[]*fakeChannel) {
	t.Helper()
	var opened []*fakeChannel
	pool, err := newChannelPool(func() (Channel, error) {
		ch := &fakeChannel{}
		opened = append(opened, ch)
		return ch, nil
	}, nil, size)
	require.NoError(t, err)
	return pool, &opened
}

func TestPublisher_PublishOrderPlaced(t *testing.T) {
	pool, opened := newFakePool(t, 1)
	defer pool.Close()
	pub := NewPublisher(pool, "orders_placed")

	ord := order.Order{
		OrderID:       uuid.New(),
		UserID:        3,
		UserEmail:     "u3@example.com",
		Items:         []order.Item{{ProductID: 1, Amount: 2, Price: decimal.RequireFromString("29.99")}},
		Total:         decimal.RequireFromString("59.98"),
		OrderDate:     time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		PaymentMethod: "card",
	}
	require.NoError(t, pub.PublishOrderPlaced(context.Background(), ord))

	ch := (*opened)[0]
	require.Len(t, ch.published, 1)
	assert.Equal(t, "orders_placed", ch.keys[0])
	msg := ch.published[0]
	assert.Equal(t, ord.OrderID.String(), msg.MessageId)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "OrderPlaced", body["event"])
	assert.Equal(t, "59.98", body["total"])
	assert.Equal(t, "u3@example.com", body["userEmail"])

	// the channel went back to the pool
	got, err := pool.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, ch, got)
}

func TestPublisher_PublishError(t *testing.T) {
	pool, opened := newFakePool(t, 1)
	defer pool.Close()
	(*opened)[0].failWith = errors.New("connection reset")

	err := NewPublisher(pool, "orders_placed").PublishOrderPlaced(context.Background(), order.Order{OrderID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestChannelPool_ReplacesClosedChannel(t *testing.T) {
	pool, opened := newFakePool(t, 1)
	defer pool.Close()

	(*opened)[0].closed = true
	ch, err := pool.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, *opened, 2)
	assert.Same(t, (*opened)[1], ch)
	pool.Put(ch)
}

func TestChannelPool_GetWaitsForContext(t *testing.T) {
	pool, _ := newFakePool(t, 1)
	defer pool.Close()

	held, err := pool.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Put(held)
	got, err := pool.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, held, got)
}

func TestChannelPool_Close(t *testing.T) {
	pool, opened := newFakePool(t, 2)
	held, err := pool.Get(context.Background())
	require.NoError(t, err)

	pool.Close()
	pool.Close()
	assert.True(t, (*opened)[0].IsClosed() || (*opened)[1].IsClosed())

	_, err = pool.Get(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)

	pool.Put(held)
	assert.True(t, held.IsClosed())
}
