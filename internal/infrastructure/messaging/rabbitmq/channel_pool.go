package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrPoolClosed = errors.New("rabbitmq: channel pool closed")

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// ChannelPool keeps a fixed number of open channels on one connection.
type ChannelPool struct {
	open      func() (Channel, error)
	closeConn func() error
	channels  chan Channel
	mu        sync.Mutex
	closed    bool
}

// NewChannelPool dials url and pre-opens size channels, each with queue
// declared durable.
func NewChannelPool(url string, queue string, size int) (*ChannelPool, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	open := func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		// idempotent
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("declare queue %q: %w", queue, err)
		}
		return ch, nil
	}
	pool, err := newChannelPool(open, conn.Close, size)
	if err != nil {
		return nil, err
	}
	log.Infof("rabbitmq: channel pool ready with %d channels on queue %q", size, queue)
	return pool, nil
}

func newChannelPool(open func() (Channel, error), closeConn func() error, size int) (*ChannelPool, error) {
	if size <= 0 {
		size = 1
	}
	p := &ChannelPool{
		open:      open,
		closeConn: closeConn,
		channels:  make(chan Channel, size),
	}
	for i := 0; i < size; i++ {
		ch, err := open()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("open channel %d: %w", i, err)
		}
		p.channels <- ch
	}
	return p, nil
}

// Get takes a channel from the pool, waiting until one is returned or ctx
// ends. A channel the broker closed is replaced with a fresh one.
func (p *ChannelPool) Get(ctx context.Context) (Channel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, ErrPoolClosed
		}
		if ch.IsClosed() {
			fresh, err := p.open()
			if err != nil {
				// keep the pool at size so later callers can retry the reopen
				p.Put(ch)
				return nil, fmt.Errorf("reopen channel: %w", err)
			}
			return fresh, nil
		}
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns ch to the pool.
func (p *ChannelPool) Put(ch Channel) {
	if ch == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		ch.Close()
		return
	}
	select {
	case p.channels <- ch:
	default:
		ch.Close()
	}
}

// Close closes every pooled channel and the connection.
func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.channels)
	for ch := range p.channels {
		ch.Close()
	}
	if p.closeConn != nil {
		if err := p.closeConn(); err != nil {
			log.Warnf("rabbitmq: close connection: %v", err)
		}
	}
}
