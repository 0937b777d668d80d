package chanq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.Get(ctx)
		if !ok || got != want {
			t.Errorf("Get() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestQueuePutBlocksWhenFull(t *testing.T) {
	q := New[string](1)
	if !q.TryPut("a") {
		t.Fatal("TryPut on empty queue failed")
	}
	if q.TryPut("b") {
		t.Error("TryPut on full queue succeeded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Put(ctx, "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Put on full queue error = %v, want DeadlineExceeded", err)
	}
}

func TestQueueGetWaitsForProducer(t *testing.T) {
	q := New[int](1)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_ = q.Put(ctx, 42)
	}()

	got, ok := q.Get(ctx)
	wg.Wait()
	if !ok || got != 42 {
		t.Errorf("Get() = %d, %v; want 42, true", got, ok)
	}
}

func TestQueueGetCancelled(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Get(ctx); ok {
		t.Error("Get() on cancelled context returned ok")
	}
}

func TestQueueClose(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()
	_ = q.Put(ctx, 1)
	q.Close()
	q.Close() // idempotent

	if err := q.Put(ctx, 2); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close error = %v, want ErrClosed", err)
	}
	if q.TryPut(2) {
		t.Error("TryPut after Close succeeded")
	}
	// Queued values survive Close.
	if got, ok := q.Get(ctx); !ok || got != 1 {
		t.Errorf("Get() = %d, %v; want 1, true", got, ok)
	}
	if _, ok := q.Get(ctx); ok {
		t.Error("Get() on closed empty queue returned ok")
	}
	select {
	case <-q.Done():
	default:
		t.Error("Done() not closed after Close")
	}
}

func TestQueueCloseUnblocksGet(t *testing.T) {
	q := New[int](1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Get(context.Background())
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Get() returned ok after Close on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Get() did not return after Close")
	}
}

func TestQueueDrain(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 5; i++ {
		q.TryPut(i)
	}
	if n := q.Drain(); n != 5 {
		t.Errorf("Drain() = %d, want 5", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", q.Len())
	}
	if q.Cap() != 8 {
		t.Errorf("Cap() = %d, want 8", q.Cap())
	}
}

func TestNewMinimumSize(t *testing.T) {
	if q := New[int](0); q.Cap() != 1 {
		t.Errorf("New(0).Cap() = %d, want 1", q.Cap())
	}
}
