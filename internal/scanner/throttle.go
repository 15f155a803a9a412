package scanner

import (
	"context"
	"time"

	"github.com/mantonx/liveset-cataloger/internal/logger"
	"github.com/shirou/gopsutil/v4/mem"
)

// throttler samples system memory on a fixed interval and reports whether
// file dispatch should pause; the worker pool size does not change. This
// is an ambient resilience concern, not a spec-required behavior, and is a
// no-op unless enabled in Config.
type throttler struct {
	enabled       bool
	memThresholdPct float64
}

func newThrottler(enabled bool) *throttler {
	return &throttler{enabled: enabled, memThresholdPct: 90.0}
}

// shouldThrottle reports true when available memory is critically low,
// sampled via gopsutil the way the ancestor scanner's adaptive throttler
// samples system load.
func (t *throttler) shouldThrottle(ctx context.Context) bool {
	if !t.enabled {
		return false
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		logger.Warn("memory sample failed, throttling disabled for this tick", "error", err)
		return false
	}
	return vm.UsedPercent >= t.memThresholdPct
}

// watch runs in the background for the lifetime of a scan and flips pause
// on/off via the returned channel as memory pressure changes.
func (t *throttler) watch(ctx context.Context, interval time.Duration) <-chan bool {
	ch := make(chan bool, 1)
	if !t.enabled {
		return ch
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- t.shouldThrottle(ctx):
				default:
				}
			}
		}
	}()
	return ch
}
