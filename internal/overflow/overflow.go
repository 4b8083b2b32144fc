// Package overflow implements the process-wide "one worker probes, others
// park" barrier used when a node's mempool rejects submissions with a sync
// overflow error. Exactly one worker is ever allowed to hold the flag.
package overflow

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultParkInterval is how long a parked worker sleeps between checks.
const DefaultParkInterval = 3 * time.Second

// Coordinator is shared by every Dispatcher in a run. Constructed once per
// `test` invocation and passed in explicitly — never a package-level global.
type Coordinator struct {
	flag         atomic.Int64 // 0 = clear; otherwise the probing worker's id
	parkInterval time.Duration
}

// New constructs a clear Coordinator. interval <= 0 uses DefaultParkInterval.
func New(interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultParkInterval
	}
	return &Coordinator{parkInterval: interval}
}

// TryBecomeProbe attempts to claim the probe role for workerID via CAS from
// clear. Reports whether this worker became the probe.
func (c *Coordinator) TryBecomeProbe(workerID int) bool {
	return c.flag.CompareAndSwap(0, int64(workerID))
}

// Clear releases the flag, but only if workerID currently holds it. Returns
// false if some other worker already released or stole it —
// that would violate the at-most-one-probe invariant the coordinator
// guarantees, and is treated as a programming error upstream.
func (c *Coordinator) Clear(workerID int) bool {
	return c.flag.CompareAndSwap(int64(workerID), 0)
}

// IsClear reports whether the flag is currently 0.
func (c *Coordinator) IsClear() bool {
	return c.flag.Load() == 0
}

// Holder returns the id of the worker currently holding the probe role, 0
// if clear.
func (c *Coordinator) Holder() int {
	return int(c.flag.Load())
}

// Park blocks the calling worker until the flag clears or becomes its own
// id, sleeping parkInterval between checks. Returns early if ctx is done.
func (c *Coordinator) Park(ctx context.Context, workerID int) {
	for {
		held := c.flag.Load()
		if held == 0 || held == int64(workerID) {
			return
		}
		log.Debug("overflow: worker parked", "worker", workerID, "probe", held)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.parkInterval):
		}
	}
}
