package producerconsumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramesh-nair-dev/boundedbuffer/boundedbuffer"
)

// Producer is a worker that repeatedly admits itself to a shared buffer
// and inserts one item per admission. A nil Limiter produces as fast as
// the buffer admits; otherwise production is paced by the token bucket.
type Producer struct {
	ID      int
	Buffer  *boundedbuffer.BoundedBuffer
	Next    func() interface{}
	Limiter *rate.Limiter

	produced int64
}

// Run produces count items, stopping early and cleanly if the buffer is
// shut down. Context cancellation is returned to the caller.
func (p *Producer) Run(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := p.Buffer.Produce(ctx, p.Next()); err != nil {
			if errors.Is(err, boundedbuffer.ErrShutdown) {
				return nil
			}
			return err
		}
		atomic.AddInt64(&p.produced, 1)
	}
	return nil
}

// Produced returns how many items this producer has inserted.
func (p *Producer) Produced() int64 {
	return atomic.LoadInt64(&p.produced)
}

// Consumer is a worker that repeatedly removes one item from a shared
// buffer and hands it to Sink, until the buffer shuts down or its context
// is cancelled.
type Consumer struct {
	ID     int
	Buffer *boundedbuffer.BoundedBuffer
	Sink   func(interface{})

	consumed int64
}

// Run consumes until the buffer is shut down (clean stop) or ctx is
// cancelled (the context error is returned).
func (c *Consumer) Run(ctx context.Context) error {
	for {
		item, err := c.Buffer.Consume(ctx)
		if err != nil {
			if errors.Is(err, boundedbuffer.ErrShutdown) {
				return nil
			}
			return err
		}
		if c.Sink != nil {
			c.Sink(item)
		}
		atomic.AddInt64(&c.consumed, 1)
	}
}

// Consumed returns how many items this consumer has removed.
func (c *Consumer) Consumed() int64 {
	return atomic.LoadInt64(&c.consumed)
}

// Config holds pool configuration.
type Config struct {
	Producers        int
	Consumers        int
	BufferCapacity   int
	ItemsPerProducer int

	// ProduceRate caps the aggregate production rate in items per second.
	// Zero means unpaced. ProduceBurst defaults to 1 when a rate is set.
	ProduceRate  float64
	ProduceBurst int

	// Source generates the item for producer id's seq-th insert. Defaults
	// to a globally unique int.
	Source func(id, seq int) interface{}

	// Sink receives every consumed item. Optional.
	Sink func(interface{})
}

// Stats reports what a pool run accomplished.
type Stats struct {
	Produced int64
	Consumed int64
}

// Pool wires a set of producers and consumers to one shared bounded
// buffer and runs them to completion.
type Pool struct {
	config    Config
	buffer    *boundedbuffer.BoundedBuffer
	producers []*Producer
	consumers []*Consumer
	consumed  int64
}

// NewPool validates the configuration and builds the pool around a fresh
// buffer.
func NewPool(config Config) (*Pool, error) {
	if config.Producers <= 0 {
		return nil, errors.New("pool needs at least one producer")
	}
	if config.Consumers <= 0 {
		return nil, errors.New("pool needs at least one consumer")
	}
	if config.ItemsPerProducer < 0 {
		return nil, errors.New("items per producer must not be negative")
	}

	buffer, err := boundedbuffer.New(config.BufferCapacity)
	if err != nil {
		return nil, err
	}

	source := config.Source
	if source == nil {
		source = func(id, seq int) interface{} {
			return id*config.ItemsPerProducer + seq
		}
	}

	var limiter *rate.Limiter
	if config.ProduceRate > 0 {
		burst := config.ProduceBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.ProduceRate), burst)
	}

	p := &Pool{config: config, buffer: buffer}

	for i := 0; i < config.Producers; i++ {
		id, seq := i, 0
		p.producers = append(p.producers, &Producer{
			ID:     id,
			Buffer: buffer,
			Next: func() interface{} {
				item := source(id, seq)
				seq++
				return item
			},
			Limiter: limiter,
		})
	}
	for i := 0; i < config.Consumers; i++ {
		consumer := &Consumer{ID: i, Buffer: buffer}
		consumer.Sink = func(item interface{}) {
			atomic.AddInt64(&p.consumed, 1)
			if config.Sink != nil {
				config.Sink(item)
			}
		}
		p.consumers = append(p.consumers, consumer)
	}
	return p, nil
}

// Buffer exposes the pool's shared buffer.
func (p *Pool) Buffer() *boundedbuffer.BoundedBuffer {
	return p.buffer
}

// Run produces Producers*ItemsPerProducer items, waits for consumers to
// drain them, then shuts the buffer down and reports totals. If ctx is
// cancelled mid-run the buffer is shut down immediately and the context
// error is returned alongside the partial stats.
func (p *Pool) Run(ctx context.Context) (Stats, error) {
	var consumerWg sync.WaitGroup
	consumerErrs := make(chan error, len(p.consumers))
	for _, c := range p.consumers {
		consumerWg.Add(1)
		go func(c *Consumer) {
			defer consumerWg.Done()
			if err := c.Run(ctx); err != nil {
				consumerErrs <- err
			}
		}(c)
	}

	var producerWg sync.WaitGroup
	producerErrs := make(chan error, len(p.producers))
	for _, prod := range p.producers {
		producerWg.Add(1)
		go func(prod *Producer) {
			defer producerWg.Done()
			if err := prod.Run(ctx, p.config.ItemsPerProducer); err != nil {
				producerErrs <- err
			}
		}(prod)
	}
	producerWg.Wait()

	var produced int64
	for _, prod := range p.producers {
		produced += prod.Produced()
	}

	// Wait for the consumers to catch up with everything produced, then
	// release them.
	err := p.awaitDrained(ctx, produced)
	p.buffer.Shutdown()
	consumerWg.Wait()

	if err == nil {
		select {
		case err = <-producerErrs:
		case err = <-consumerErrs:
		default:
		}
	}

	return Stats{
		Produced: produced,
		Consumed: atomic.LoadInt64(&p.consumed),
	}, err
}

func (p *Pool) awaitDrained(ctx context.Context, produced int64) error {
	for atomic.LoadInt64(&p.consumed) < produced {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

// Example demonstrates a pool of producers and consumers sharing one
// bounded buffer.
func Example() {
	pool, err := NewPool(Config{
		Producers:        4,
		Consumers:        5,
		BufferCapacity:   5,
		ItemsPerProducer: 25,
	})
	if err != nil {
		fmt.Println("pool setup failed:", err)
		return
	}

	stats, err := pool.Run(context.Background())
	if err != nil {
		fmt.Println("pool run failed:", err)
		return
	}
	fmt.Printf("produced %d, consumed %d\n", stats.Produced, stats.Consumed)
}
