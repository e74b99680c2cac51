package recurring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avezhov/finance-service/internal/models"
)

// countingProcessor records attempts per transaction and fails the
// configured number of times before succeeding.
type countingProcessor struct {
	mu        sync.Mutex
	attempts  map[string]int
	failFirst map[string]int
	alwaysErr map[string]bool
}

func newCountingProcessor() *countingProcessor {
	return &countingProcessor{
		attempts:  map[string]int{},
		failFirst: map[string]int{},
		alwaysErr: map[string]bool{},
	}
}

func (p *countingProcessor) Materialize(ctx context.Context, txnID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts[txnID]++
	if p.alwaysErr[txnID] {
		return errors.New("permanent infrastructure failure")
	}
	if p.attempts[txnID] <= p.failFirst[txnID] {
		return errors.New("transient failure")
	}
	return nil
}

func (p *countingProcessor) attemptCount(txnID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[txnID]
}

func testDispatcher(p Processor) *Dispatcher {
	return NewDispatcher(p, testLogger(), DispatcherConfig{
		Workers:            3,
		MaxRetries:         2,
		BaseDelay:          time.Millisecond,
		OwnerRatePerMinute: 1000,
	})
}

func items(n int) []models.DueTransaction {
	out := make([]models.DueTransaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.DueTransaction{
			TransactionID: string(rune('a' + i)),
			UserID:        "user-1",
		})
	}
	return out
}

func TestDispatchProcessesEveryItemOnce(t *testing.T) {
	t.Parallel()

	p := newCountingProcessor()
	d := testDispatcher(p)

	result := d.Dispatch(context.Background(), items(8))
	if result.Processed != 8 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 8 processed", result)
	}
	for i := 0; i < 8; i++ {
		if n := p.attemptCount(string(rune('a' + i))); n != 1 {
			t.Fatalf("item %d attempted %d times", i, n)
		}
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	p := newCountingProcessor()
	p.failFirst["a"] = 2
	d := testDispatcher(p)

	result := d.Dispatch(context.Background(), items(1))
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want success after retries", result)
	}
	if n := p.attemptCount("a"); n != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", n)
	}
}

func TestDispatchBoundsRetriesAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	p := newCountingProcessor()
	p.alwaysErr["b"] = true
	d := testDispatcher(p)

	result := d.Dispatch(context.Background(), items(4))
	if result.Processed != 3 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 3 processed / 1 failed", result)
	}
	if n := p.attemptCount("b"); n != 3 {
		t.Fatalf("expected failing item to stop after 3 attempts, got %d", n)
	}
	// The healthy items were unaffected by b's failure.
	for _, id := range []string{"a", "c", "d"} {
		if n := p.attemptCount(id); n != 1 {
			t.Fatalf("item %s attempted %d times", id, n)
		}
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	t.Parallel()

	d := testDispatcher(newCountingProcessor())
	if result := d.Dispatch(context.Background(), nil); result != (Result{}) {
		t.Fatalf("result = %+v, want zero", result)
	}
}

func TestDispatchStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	p := newCountingProcessor()
	p.alwaysErr["a"] = true
	d := NewDispatcher(p, testLogger(), DispatcherConfig{
		Workers:            1,
		MaxRetries:         10,
		BaseDelay:          time.Hour, // would stall forever without cancellation
		OwnerRatePerMinute: 1000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- d.Dispatch(ctx, items(2)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if result.Processed != 0 {
			t.Fatalf("result = %+v, want no processed items", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not stop after context cancellation")
	}
}

func TestOwnerLimiterIsPerOwner(t *testing.T) {
	t.Parallel()

	d := testDispatcher(newCountingProcessor())
	a := d.ownerLimiter("user-a")
	if d.ownerLimiter("user-a") != a {
		t.Fatal("expected the same limiter for the same owner")
	}
	if d.ownerLimiter("user-b") == a {
		t.Fatal("expected distinct limiters per owner")
	}
}
