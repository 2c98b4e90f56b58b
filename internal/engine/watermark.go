package engine

import (
	"sync"
	"time"
)

// WatermarkTracker tracks, per symbol, the maximum event time observed. The
// watermark is that maximum minus the allowed-lateness margin; a bucket is
// eligible for closure once the watermark passes its end.
type WatermarkTracker struct {
	mu       sync.RWMutex
	lateness time.Duration
	maxEvent map[string]time.Time
}

// NewWatermarkTracker creates a tracker with the given allowed lateness.
func NewWatermarkTracker(lateness time.Duration) *WatermarkTracker {
	return &WatermarkTracker{
		lateness: lateness,
		maxEvent: make(map[string]time.Time),
	}
}

// Observe records an event time and returns the new watermark for the
// symbol. Monotonic: a smaller event time never regresses the maximum, so
// concurrent calls commute.
func (w *WatermarkTracker) Observe(symbol string, eventTime time.Time) time.Time {
	w.mu.Lock()
	if eventTime.After(w.maxEvent[symbol]) {
		w.maxEvent[symbol] = eventTime
	}
	wm := w.maxEvent[symbol].Add(-w.lateness)
	w.mu.Unlock()
	return wm
}

// WatermarkFor returns the current watermark for a symbol, or the zero time
// if no event has been observed.
func (w *WatermarkTracker) WatermarkFor(symbol string) time.Time {
	w.mu.RLock()
	max, ok := w.maxEvent[symbol]
	w.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return max.Add(-w.lateness)
}

// MaxEventTimes returns a copy of the per-symbol maxima, used by
// checkpointing and the status endpoint.
func (w *WatermarkTracker) MaxEventTimes() map[string]time.Time {
	w.mu.RLock()
	out := make(map[string]time.Time, len(w.maxEvent))
	for s, t := range w.maxEvent {
		out[s] = t
	}
	w.mu.RUnlock()
	return out
}

// RestoreMaxEvent seeds a symbol maximum from a checkpoint. Keeps the larger
// value if live ticks already advanced it.
func (w *WatermarkTracker) RestoreMaxEvent(symbol string, eventTime time.Time) {
	w.mu.Lock()
	if eventTime.After(w.maxEvent[symbol]) {
		w.maxEvent[symbol] = eventTime
	}
	w.mu.Unlock()
}
