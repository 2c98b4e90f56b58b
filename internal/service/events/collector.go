package events

import (
	"sync"
	"time"

	"CandleFlow/internal/domain/models"
)

// DropEntry is one late-drop occurrence in wire form for the status API.
type DropEntry struct {
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"tf"`
	BucketStart int64     `json:"bucketStart"`
	EventTime   int64     `json:"eventTime"`
	ArrivedAt   time.Time `json:"arrivedAt"`
	Price       string    `json:"price"`
}

type dropKey struct {
	symbol string
	tf     string
}

// DropCollector keeps the most recent late drops in a fixed ring plus
// running counters per (symbol, timeframe). It backs the status endpoint;
// drops older than the ring capacity survive only as counts.
type DropCollector struct {
	mu     sync.RWMutex
	ring   []DropEntry
	next   int
	filled bool
	counts map[dropKey]int64
}

// NewDropCollector creates a collector retaining the last capacity drops.
func NewDropCollector(capacity int) *DropCollector {
	if capacity <= 0 {
		capacity = 256
	}
	return &DropCollector{
		ring:   make([]DropEntry, capacity),
		counts: make(map[dropKey]int64),
	}
}

// Record stores one late drop. Implements the engine's drop sink.
func (c *DropCollector) Record(drop models.LateDrop) {
	entry := DropEntry{
		Symbol:      drop.Symbol,
		Timeframe:   drop.Timeframe,
		BucketStart: drop.BucketStart.Unix(),
		EventTime:   drop.EventTime.Unix(),
		ArrivedAt:   drop.ArrivedAt,
		Price:       drop.Price.String(),
	}

	c.mu.Lock()
	c.ring[c.next] = entry
	c.next++
	if c.next == len(c.ring) {
		c.next = 0
		c.filled = true
	}
	c.counts[dropKey{symbol: drop.Symbol, tf: drop.Timeframe}]++
	c.mu.Unlock()
}

// Recent returns up to n most recent drops, newest first.
func (c *DropCollector) Recent(n int) []DropEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	size := c.next
	if c.filled {
		size = len(c.ring)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]DropEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := c.next - 1 - i
		if idx < 0 {
			idx += len(c.ring)
		}
		out = append(out, c.ring[idx])
	}
	return out
}

// Counts returns total drops per "symbol:tf".
func (c *DropCollector) Counts() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k.symbol+":"+k.tf] = v
	}
	return out
}

// Total returns the total number of recorded drops.
func (c *DropCollector) Total() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, v := range c.counts {
		total += v
	}
	return total
}
