package engine

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"CandleFlow/internal/domain/models"
)

// bucketKey identifies one in-progress aggregate.
type bucketKey struct {
	symbol string
	tf     string
	start  int64 // unix seconds
}

// bucketState is a mutable aggregate plus the bookkeeping needed for the
// deterministic open/close tie-break. Guarded by the owning shard lock.
type bucketState struct {
	candle       models.Candle
	openEvent    time.Time
	closeEvent   time.Time
	closeArrival uint64
}

type indexShard struct {
	mu sync.Mutex
	m  map[bucketKey]*bucketState
}

// Index maps (symbol, timeframe, bucketStart) to in-progress aggregates.
// Sharded so unrelated symbols never serialize on each other; one exclusive
// lock per shard, no global lock. Pure data structure, no I/O.
type Index struct {
	shards []*indexShard
}

// NewIndex creates an index with n shards (rounded up to at least 1).
func NewIndex(n int) *Index {
	if n < 1 {
		n = 1
	}
	shards := make([]*indexShard, n)
	for i := range shards {
		shards[i] = &indexShard{m: make(map[bucketKey]*bucketState)}
	}
	return &Index{shards: shards}
}

func (ix *Index) shard(k bucketKey) *indexShard {
	h := fnv.New32a()
	h.Write([]byte(k.symbol))
	h.Write([]byte(k.tf))
	h.Write([]byte(strconv.FormatInt(k.start, 10)))
	return ix.shards[int(h.Sum32())%len(ix.shards)]
}

// Apply runs apply on the aggregate for k under the shard lock, creating it
// on first touch. guard is evaluated under the same lock before anything is
// created; returning false aborts the update (used for the closed-frontier
// re-check so a drained bucket is never silently re-opened).
func (ix *Index) Apply(k bucketKey, guard func() bool, apply func(st *bucketState, created bool)) bool {
	sh := ix.shard(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if guard != nil && !guard() {
		return false
	}
	st, ok := sh.m[k]
	if !ok {
		st = &bucketState{}
		sh.m[k] = st
	}
	apply(st, !ok)
	return true
}

// Remove deletes and returns the aggregate for k.
func (ix *Index) Remove(k bucketKey) (*bucketState, bool) {
	sh := ix.shard(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.m[k]
	if ok {
		delete(sh.m, k)
	}
	return st, ok
}

// Keys returns a point-in-time copy of all bucket keys.
func (ix *Index) Keys() []bucketKey {
	var keys []bucketKey
	for _, sh := range ix.shards {
		sh.mu.Lock()
		for k := range sh.m {
			keys = append(keys, k)
		}
		sh.mu.Unlock()
	}
	return keys
}

// Collect returns consistent copies of every candle matching the filter.
// Each copy is taken under its shard lock, so a reader never observes a
// half-updated aggregate.
func (ix *Index) Collect(match func(k bucketKey) bool) []models.Candle {
	var out []models.Candle
	for _, sh := range ix.shards {
		sh.mu.Lock()
		for k, st := range sh.m {
			if match(k) {
				out = append(out, st.candle)
			}
		}
		sh.mu.Unlock()
	}
	return out
}

// Snapshot copies every aggregate with its tie-break bookkeeping, for
// checkpointing.
func (ix *Index) Snapshot() []bucketState {
	var out []bucketState
	for _, sh := range ix.shards {
		sh.mu.Lock()
		for _, st := range sh.m {
			out = append(out, *st)
		}
		sh.mu.Unlock()
	}
	return out
}

// Len returns the number of open buckets.
func (ix *Index) Len() int {
	n := 0
	for _, sh := range ix.shards {
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
