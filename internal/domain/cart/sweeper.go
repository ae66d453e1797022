package cart

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// StaleDeleter removes guest carts that have been idle since before the
// cutoff.
type StaleDeleter interface {
	DeleteStaleGuest(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper expires idle guest carts in the background. Cleanup is best
// effort: a failed pass is logged and retried on the next tick. User
// carts are never swept.
type Sweeper struct {
	carts    StaleDeleter
	ttl      time.Duration
	interval time.Duration
}

// NewSweeper creates a Sweeper that deletes guest carts idle for longer
// than ttl, checking every interval.
func NewSweeper(carts StaleDeleter, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{carts: carts, ttl: ttl, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.carts.DeleteStaleGuest(ctx, time.Now().Add(-s.ttl))
	switch {
	case err != nil:
		if ctx.Err() == nil {
			zctx.From(ctx).Warn("Guest cart sweep failed", zap.Error(err))
		}
	case n > 0:
		zctx.From(ctx).Info("Expired idle guest carts", zap.Int64("count", n))
	}
}
