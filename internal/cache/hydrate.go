// internal/cache/hydrate.go
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HydrationStatus represents the outcome of loading the persisted snapshot
type HydrationStatus string

const (
	HydrationStatusSuccess   HydrationStatus = "success"
	HydrationStatusPartial   HydrationStatus = "partial"
	HydrationStatusFailed    HydrationStatus = "failed"
	HydrationStatusAbandoned HydrationStatus = "abandoned"
)

// Reasons a persisted entry is not restored
const (
	skipMalformed  = "malformed"
	skipVersion    = "version"
	skipExpired    = "expired"
	skipSuperseded = "superseded"
	skipCapacity   = "capacity"
)

// HydrationReport contains the results of one hydration
type HydrationReport struct {
	Status       HydrationStatus `json:"status"`
	Recovered    int             `json:"recovered"`
	Malformed    int             `json:"malformed"`
	StaleVersion int             `json:"staleVersion"`
	Expired      int             `json:"expired"`
	Superseded   int             `json:"superseded"`
	OverCapacity int             `json:"overCapacity"`
	Duration     time.Duration   `json:"duration"`
	Error        string          `json:"error,omitempty"`
}

type hydration struct {
	done   chan struct{}
	report HydrationReport
}

// startHydrationLocked begins loading the persisted snapshot unless a hydration is
// already running or finished. Caller holds c.mu.
func (c *SpanCache) startHydrationLocked() {
	if c.hydration != nil {
		return
	}

	h := &hydration{done: make(chan struct{})}
	c.hydration = h
	c.dirty = make(map[string]struct{})

	barrier := c.persister.Hold()
	go c.hydrate(h, barrier)
}

func (c *SpanCache) hydrate(h *hydration, barrier uint64) {
	defer close(h.done)
	defer c.persister.Release()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.hydrationTimeout)
	defer cancel()

	report := HydrationReport{Status: HydrationStatusSuccess}

	// Writes and deletes scheduled before this hydration began must land before the read.
	if err := c.persister.Settle(ctx, barrier); err != nil {
		c.logger.Warn("failed to settle pending snapshot before hydration", zap.Error(err))
	}

	pairs, malformed, err := c.persister.Load(ctx)
	report.Malformed = malformed
	if err != nil {
		c.logger.Warn("failed to load persisted span cache", zap.Error(err))
		report.Status = HydrationStatusFailed
		report.Error = err.Error()
	}

	c.mu.Lock()
	if c.hydration != h {
		c.mu.Unlock()
		h.report = HydrationReport{Status: HydrationStatusAbandoned, Duration: time.Since(start)}
		c.logger.Debug("hydration abandoned after clear")
		return
	}

	if err == nil {
		c.mergeLocked(pairs, &report)
	}
	c.dirty = nil
	c.hydrated += int64(report.Recovered)

	var snapshot []*Entry
	if report.Recovered > 0 {
		snapshot = c.store.Entries()
	}
	c.metrics.setEntries(c.store.Len())

	report.Duration = time.Since(start)
	if report.Status == HydrationStatusSuccess && report.Malformed > 0 {
		report.Status = HydrationStatusPartial
	}
	h.report = report
	c.mu.Unlock()

	if snapshot != nil {
		c.persister.ScheduleWrite(snapshot)
	}

	c.metrics.recordHydrated(report.Recovered)
	c.metrics.recordSkipped(skipMalformed, report.Malformed)
	c.metrics.recordSkipped(skipVersion, report.StaleVersion)
	c.metrics.recordSkipped(skipExpired, report.Expired)
	c.metrics.recordSkipped(skipSuperseded, report.Superseded)
	c.metrics.recordSkipped(skipCapacity, report.OverCapacity)

	c.logger.Info("span cache hydrated",
		zap.String("status", string(report.Status)),
		zap.Int("recovered", report.Recovered),
		zap.Int("malformed", report.Malformed),
		zap.Int("stale_version", report.StaleVersion),
		zap.Int("expired", report.Expired),
		zap.Int("superseded", report.Superseded),
		zap.Duration("duration", report.Duration))
}

// mergeLocked restores persisted entries behind the live ones. Pairs are stored least
// recently used first, so walking them backwards and appending at the old end keeps their
// relative order. A key that is live, or was written or evicted since hydration began,
// keeps its live state.
func (c *SpanCache) mergeLocked(pairs []rawPair, report *HydrationReport) {
	now := c.now()

	for i := len(pairs) - 1; i >= 0; i-- {
		pair := pairs[i]

		if _, touched := c.dirty[pair.Key]; touched {
			report.Superseded++
			continue
		}
		if _, live := c.store.Peek(pair.Key); live {
			report.Superseded++
			continue
		}

		entry, err := decodeEntry(pair)
		if err != nil {
			c.logger.Debug("skipping malformed cache entry", zap.String("key", pair.Key), zap.Error(err))
			report.Malformed++
			continue
		}
		if !c.gate.Matches(entry.FormatVersion) {
			report.StaleVersion++
			continue
		}
		if c.expired(entry, now) {
			report.Expired++
			continue
		}
		if !c.store.PutOldest(entry) {
			report.OverCapacity++
			continue
		}
		report.Recovered++
	}
}
