package coupon

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// FilteredRepository wraps a Repository with a bloom filter over known
// coupon codes. Lookups for codes that are definitely not stored are
// answered without touching the database, which keeps cheap probes
// (mistyped or guessed codes on the preview endpoint) off the hot path.
//
// The filter is warmed from Codes at startup and updated on Create. Bloom
// false positives only cost a database miss; false negatives cannot occur
// as long as every stored code passes through Warm or Create.
type FilteredRepository struct {
	Repository

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewFilteredRepository wraps repo with a code filter sized for the
// expected number of codes at the given false positive rate.
func NewFilteredRepository(repo Repository, expectedCodes uint, fpRate float64) *FilteredRepository {
	return &FilteredRepository{
		Repository: repo,
		filter:     bloom.NewWithEstimates(expectedCodes, fpRate),
	}
}

// Warm loads every stored code into the filter. Call once during startup,
// after migrations and before serving traffic.
func (r *FilteredRepository) Warm(ctx context.Context) error {
	codes, err := r.Repository.Codes(ctx)
	if err != nil {
		return errors.Wrap(err, "load coupon codes")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range codes {
		r.filter.AddString(code)
	}
	return nil
}

// RewarmEvery reloads the filter periodically until ctx is done, so codes
// inserted outside this process (the bulk ingest tool writes straight to
// the table) become previewable without a restart. A zero interval
// disables reloading. Deleted codes stay in the filter until restart;
// they only cost a database miss.
func (r *FilteredRepository) RewarmEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := r.Warm(ctx); err != nil && ctx.Err() == nil {
			zctx.From(ctx).Warn("Coupon filter reload failed", zap.Error(err))
		}
	}
}

// FindByCode short-circuits to ErrNotFound when the filter rules the code
// out, and otherwise defers to the wrapped repository.
func (r *FilteredRepository) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	r.mu.RLock()
	known := r.filter.TestString(code)
	r.mu.RUnlock()

	if !known {
		return nil, ErrNotFound
	}
	return r.Repository.FindByCode(ctx, code)
}

// Create stores the coupon and registers its code with the filter.
func (r *FilteredRepository) Create(ctx context.Context, c *Coupon) error {
	if err := r.Repository.Create(ctx, c); err != nil {
		return err
	}

	r.mu.Lock()
	r.filter.AddString(c.Code)
	r.mu.Unlock()
	return nil
}
