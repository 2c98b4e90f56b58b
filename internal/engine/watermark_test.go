package engine

import (
	"sync"
	"testing"
	"time"
)

func TestWatermarkMonotonic(t *testing.T) {
	w := NewWatermarkTracker(5 * time.Second)

	events := []int64{10, 50, 30, 50, 20, 80, 79}
	prev := time.Time{}
	for _, e := range events {
		wm := w.Observe("BTCUSDT", time.Unix(e, 0).UTC())
		if wm.Before(prev) {
			t.Fatalf("watermark regressed: %v after %v", wm, prev)
		}
		prev = wm
	}
	if got := w.WatermarkFor("BTCUSDT").Unix(); got != 75 {
		t.Fatalf("watermark = %d, want 75", got)
	}
}

func TestWatermarkPerSymbol(t *testing.T) {
	w := NewWatermarkTracker(0)
	w.Observe("BTCUSDT", time.Unix(100, 0).UTC())

	if !w.WatermarkFor("ETHUSDT").IsZero() {
		t.Fatalf("unseen symbol should have zero watermark")
	}
	if got := w.WatermarkFor("BTCUSDT").Unix(); got != 100 {
		t.Fatalf("watermark = %d, want 100", got)
	}
}

func TestWatermarkConcurrentObserve(t *testing.T) {
	w := NewWatermarkTracker(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for j := int64(0); j < 100; j++ {
				w.Observe("BTCUSDT", time.Unix(base+j, 0).UTC())
			}
		}(int64(i * 100))
	}
	wg.Wait()

	if got := w.WatermarkFor("BTCUSDT").Unix(); got != 799 {
		t.Fatalf("watermark = %d, want 799", got)
	}
}
