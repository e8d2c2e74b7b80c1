package producerconsumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ramesh-nair-dev/boundedbuffer/boundedbuffer"
)

func TestPoolRunsToCompletion(t *testing.T) {
	const (
		producers        = 3
		consumers        = 2
		itemsPerProducer = 30
	)

	seen := make(map[int]int)
	var seenMu sync.Mutex

	pool, err := NewPool(Config{
		Producers:        producers,
		Consumers:        consumers,
		BufferCapacity:   4,
		ItemsPerProducer: itemsPerProducer,
		Sink: func(item interface{}) {
			seenMu.Lock()
			seen[item.(int)]++
			seenMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	stats, err := pool.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	total := int64(producers * itemsPerProducer)
	if stats.Produced != total {
		t.Errorf("Expected %d produced, got %d", total, stats.Produced)
	}
	if stats.Consumed != total {
		t.Errorf("Expected %d consumed, got %d", total, stats.Consumed)
	}
	if len(seen) != int(total) {
		t.Errorf("Expected %d unique items, got %d", total, len(seen))
	}
	for item, count := range seen {
		if count != 1 {
			t.Errorf("Item %d consumed %d times", item, count)
		}
	}
	if pool.Buffer().Len() != 0 {
		t.Errorf("Expected drained buffer, got %d items", pool.Buffer().Len())
	}
}

func TestPoolConfigValidation(t *testing.T) {
	valid := Config{Producers: 1, Consumers: 1, BufferCapacity: 1, ItemsPerProducer: 1}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no producers", func(c *Config) { c.Producers = 0 }},
		{"no consumers", func(c *Config) { c.Consumers = 0 }},
		{"negative items", func(c *Config) { c.ItemsPerProducer = -1 }},
		{"zero capacity", func(c *Config) { c.BufferCapacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			if _, err := NewPool(config); err == nil {
				t.Error("Expected configuration error, got nil")
			}
		})
	}

	// Capacity errors surface the buffer's own sentinel.
	config := valid
	config.BufferCapacity = -5
	if _, err := NewPool(config); !errors.Is(err, boundedbuffer.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestPoolRateLimitedProducers(t *testing.T) {
	const (
		items = 6
		rps   = 100.0
	)

	pool, err := NewPool(Config{
		Producers:        1,
		Consumers:        1,
		BufferCapacity:   2,
		ItemsPerProducer: items,
		ProduceRate:      rps,
	})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	start := time.Now()
	stats, err := pool.Run(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Produced != items || stats.Consumed != items {
		t.Errorf("Expected %d/%d, got %d/%d", items, items, stats.Produced, stats.Consumed)
	}

	// Burst 1 at 100/s means at least one pacing interval per item after
	// the first; allow generous scheduling slack.
	minElapsed := time.Duration(float64(items-1)/rps*float64(time.Second)) / 2
	if elapsed < minElapsed {
		t.Errorf("Run finished in %v; pacing should need at least %v", elapsed, minElapsed)
	}
}

func TestPoolContextCancellation(t *testing.T) {
	pool, err := NewPool(Config{
		Producers:        2,
		Consumers:        1,
		BufferCapacity:   2,
		ItemsPerProducer: 1000,
		ProduceRate:      5, // slow enough that cancellation lands mid-run
	})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	var stats Stats
	var runErr error
	go func() {
		stats, runErr = pool.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if !errors.Is(runErr, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", runErr)
	}
	if stats.Produced >= 2000 {
		t.Errorf("Expected a partial run, got %d items produced", stats.Produced)
	}
}

func TestProducerStopsCleanlyOnShutdown(t *testing.T) {
	buffer, _ := boundedbuffer.New(1)
	if err := buffer.Produce(context.Background(), "fill"); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	producer := &Producer{
		ID:     0,
		Buffer: buffer,
		Next:   func() interface{} { return "item" },
	}

	result := make(chan error, 1)
	go func() {
		result <- producer.Run(context.Background(), 10)
	}()

	// The producer is blocked on the full buffer.
	time.Sleep(50 * time.Millisecond)
	buffer.Shutdown()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Expected clean stop on shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Producer never stopped after shutdown")
	}
	if producer.Produced() != 0 {
		t.Errorf("Expected 0 produced, got %d", producer.Produced())
	}
}

func TestConsumerStopsCleanlyOnShutdown(t *testing.T) {
	buffer, _ := boundedbuffer.New(1)
	consumer := &Consumer{ID: 0, Buffer: buffer}

	result := make(chan error, 1)
	go func() {
		result <- consumer.Run(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	buffer.Shutdown()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Expected clean stop on shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Consumer never stopped after shutdown")
	}
	if consumer.Consumed() != 0 {
		t.Errorf("Expected 0 consumed, got %d", consumer.Consumed())
	}
}
