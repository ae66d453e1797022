package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags a goroutine leak: it fails once the live
// goroutine count exceeds max.
func GoroutineCountCheck(max int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return errors.Errorf("%d goroutines running, limit is %d", n, max)
		}
		return nil
	}
}

// GCPauseCheck fails when the most recent stop-the-world GC pause exceeded
// max, which usually means heap pressure.
func GCPauseCheck(max time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		if len(stats.Pause) > 0 && stats.Pause[0] > max {
			return errors.Errorf("last GC pause %s exceeded %s", stats.Pause[0], max)
		}
		return nil
	}
}
