package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultScanTimeout bounds how long a scan waits for a verdict.
const DefaultScanTimeout = 2500 * time.Millisecond

// Injector loads the classifier into a tab's page context. A successful
// injection causes exactly one verdict to be delivered for that tab;
// injection errors surface immediately as ErrInjectionFailed.
type Injector interface {
	Inject(ctx context.Context, tabID int) error
}

// VerdictSink receives classifier verdicts tagged with the originating tab.
type VerdictSink interface {
	Deliver(tabID int, verdict Verdict)
}

// pendingScan is one in-flight request. The entry is removed from the
// registry atomically with whichever settlement path wins; the buffered
// channel means delivery never blocks the sender.
type pendingScan struct {
	verdicts  chan Verdict
	createdAt time.Time
}

// Coordinator correlates asynchronous verdicts back to scan requesters by
// tab identity and bounds each wait with a timeout. It owns the pending-scan
// registry for its lifetime; at most one scan can be in flight per tab.
type Coordinator struct {
	injector Injector
	timeout  time.Duration

	mu      sync.Mutex
	pending map[int]*pendingScan
}

// NewCoordinator creates a Coordinator with the default scan timeout.
func NewCoordinator(injector Injector) *Coordinator {
	return NewCoordinatorWithTimeout(injector, DefaultScanTimeout)
}

// NewCoordinatorWithTimeout creates a Coordinator with a custom timeout,
// mainly for tests.
func NewCoordinatorWithTimeout(injector Injector, timeout time.Duration) *Coordinator {
	return &Coordinator{
		injector: injector,
		timeout:  timeout,
		pending:  make(map[int]*pendingScan),
	}
}

// RequestScan injects the classifier into the given tab and waits for its
// verdict. It fails with ErrNoActiveTab for an invalid tab id,
// ErrScanInProgress when the tab already has an unsettled scan,
// ErrInjectionFailed when the classifier cannot be loaded, and
// ErrScanTimeout when no verdict arrives in time. A verdict arriving after
// settlement is discarded.
func (c *Coordinator) RequestScan(ctx context.Context, tabID int) (Verdict, error) {
	if tabID <= 0 {
		return Verdict{}, ErrNoActiveTab
	}

	p := &pendingScan{
		verdicts:  make(chan Verdict, 1),
		createdAt: time.Now(),
	}

	c.mu.Lock()
	if _, exists := c.pending[tabID]; exists {
		c.mu.Unlock()
		return Verdict{}, fmt.Errorf("%w: tab %d", ErrScanInProgress, tabID)
	}
	c.pending[tabID] = p
	c.mu.Unlock()

	if err := c.injector.Inject(ctx, tabID); err != nil {
		c.settle(tabID)
		return Verdict{}, fmt.Errorf("%w: %v", ErrInjectionFailed, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case v := <-p.verdicts:
		return v, nil
	case <-timer.C:
		if !c.settle(tabID) {
			// Deliver won the race: the verdict is already buffered.
			return <-p.verdicts, nil
		}
		slog.Debug("Scan timed out", "tab_id", tabID, "waited", time.Since(p.createdAt))
		return Verdict{}, ErrScanTimeout
	case <-ctx.Done():
		if !c.settle(tabID) {
			return <-p.verdicts, nil
		}
		return Verdict{}, ctx.Err()
	}
}

// Deliver routes a verdict to the pending scan for its tab. Verdicts for
// tabs with no pending scan (late arrivals after a timeout, or stray
// messages) are discarded.
func (c *Coordinator) Deliver(tabID int, verdict Verdict) {
	c.mu.Lock()
	p, ok := c.pending[tabID]
	if ok {
		delete(c.pending, tabID)
	}
	c.mu.Unlock()

	if !ok {
		slog.Debug("Discarding verdict with no pending scan", "tab_id", tabID)
		return
	}
	p.verdicts <- verdict
}

// Pending reports whether a scan is currently in flight for a tab.
func (c *Coordinator) Pending(tabID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[tabID]
	return ok
}

// settle removes the pending entry for a tab, reporting whether this caller
// performed the removal. Exactly one settlement path wins per scan.
func (c *Coordinator) settle(tabID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[tabID]; !ok {
		return false
	}
	delete(c.pending, tabID)
	return true
}
