package recurring

import (
	"context"
	"sync"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Processor executes one materialization. Satisfied by *Materializer.
type Processor interface {
	Materialize(ctx context.Context, txnID, userID string) error
}

// DispatcherConfig tunes the dispatcher's worker pool, retry policy and
// per-owner throttle.
type DispatcherConfig struct {
	// Workers is the number of concurrent materialization workers.
	Workers int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
	// OwnerRatePerMinute caps materializations per owner per minute.
	OwnerRatePerMinute int
}

// Result summarizes one dispatch cycle.
type Result struct {
	Processed int
	Failed    int
}

// Dispatcher fans due transactions out to a worker pool, one independent
// unit of work per transaction: a failure on one item never blocks or
// rolls back the others. A per-owner token bucket keeps one user's
// backlog from monopolizing the workers, and each item is retried with
// bounded exponential backoff. Items that exhaust their retries stay due
// and are picked up again by the next selector pass.
type Dispatcher struct {
	processor Processor
	log       *logrus.Logger
	cfg       DispatcherConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDispatcher initializes a new dispatcher
func NewDispatcher(processor Processor, log *logrus.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.OwnerRatePerMinute <= 0 {
		cfg.OwnerRatePerMinute = 10
	}
	return &Dispatcher{
		processor: processor,
		log:       log,
		cfg:       cfg,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Dispatch processes the batch and returns per-cycle counts. It blocks
// until every item has been attempted or the context is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, items []models.DueTransaction) Result {
	if len(items) == 0 {
		return Result{}
	}

	jobs := make(chan models.DueTransaction)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var result Result

	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				err := d.process(ctx, item)
				mu.Lock()
				if err != nil {
					result.Failed++
				} else {
					result.Processed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result
		}
	}
	close(jobs)
	wg.Wait()

	d.log.Infof("Dispatch cycle finished: %d processed, %d failed", result.Processed, result.Failed)
	return result
}

// process runs one unit of work: throttle by owner, then attempt the
// materialization with bounded exponential backoff.
func (d *Dispatcher) process(ctx context.Context, item models.DueTransaction) error {
	if err := d.ownerLimiter(item.UserID).Wait(ctx); err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.BaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	err := backoff.Retry(func() error {
		if err := d.processor.Materialize(ctx, item.TransactionID, item.UserID); err != nil {
			d.log.Warnf("Materialization attempt failed for transaction %s: %v", item.TransactionID, err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.cfg.MaxRetries)), ctx))

	if err != nil {
		d.log.Errorf("Materialization failed for transaction %s after %d retries: %v",
			item.TransactionID, d.cfg.MaxRetries, err)
	}
	return err
}

// ownerLimiter returns the owner's token bucket, creating it on first
// use: burst and refill both equal the per-minute ceiling.
func (d *Dispatcher) ownerLimiter(userID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	limiter, ok := d.limiters[userID]
	if !ok {
		perMinute := d.cfg.OwnerRatePerMinute
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		d.limiters[userID] = limiter
	}
	return limiter
}
