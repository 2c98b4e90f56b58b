package engine

import (
	"testing"
	"time"
)

func TestBucketStartTruncation(t *testing.T) {
	cases := []struct {
		name  string
		event int64
		start int64
		end   int64
	}{
		{"1m", 0, 0, 60},
		{"1m", 59, 0, 60},
		{"1m", 60, 60, 120},
		{"1m", 61, 60, 120},
		{"5m", 299, 0, 300},
		{"5m", 301, 300, 600},
		{"1h", 3599, 0, 3600},
		{"1d", 100000, 86400, 172800},
	}
	for _, tc := range cases {
		tfs, err := ParseTimeframes([]string{tc.name})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		tf := tfs[0]
		ev := time.Unix(tc.event, 0).UTC()
		if got := tf.BucketStart(ev).Unix(); got != tc.start {
			t.Fatalf("%s start(%d) = %d, want %d", tc.name, tc.event, got, tc.start)
		}
		if got := tf.BucketEnd(ev).Unix(); got != tc.end {
			t.Fatalf("%s end(%d) = %d, want %d", tc.name, tc.event, got, tc.end)
		}
	}
}

func TestParseTimeframesRejects(t *testing.T) {
	if _, err := ParseTimeframes(nil); err == nil {
		t.Fatalf("empty set accepted")
	}
	if _, err := ParseTimeframes([]string{"1m", "1m"}); err == nil {
		t.Fatalf("duplicate accepted")
	}
	if _, err := ParseTimeframes([]string{"banana"}); err == nil {
		t.Fatalf("garbage accepted")
	}
	if _, err := ParseTimeframes([]string{"0m"}); err == nil {
		t.Fatalf("zero width accepted")
	}
}
