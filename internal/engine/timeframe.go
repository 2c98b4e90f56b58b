package engine

import (
	"fmt"
	"time"

	domrepo "CandleFlow/internal/domain/repository"
)

// Timeframe is a resolved bucket resolution: a name plus its fixed width.
type Timeframe struct {
	Name  string
	Width time.Duration
}

// BucketStart truncates an event time to the timeframe boundary
// (timestamp minus timestamp mod width, in unix seconds).
func (tf Timeframe) BucketStart(t time.Time) time.Time {
	sec := int64(tf.Width / time.Second)
	u := t.Unix()
	return time.Unix(u-(u%sec), 0).UTC()
}

// BucketEnd returns the exclusive end of the bucket containing t.
func (tf Timeframe) BucketEnd(t time.Time) time.Time {
	return tf.BucketStart(t).Add(tf.Width)
}

// ParseTimeframes resolves the configured timeframe names. The set must be
// non-empty and free of duplicates.
func ParseTimeframes(names []string) ([]Timeframe, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("timeframe set is empty")
	}
	seen := make(map[string]struct{}, len(names))
	tfs := make([]Timeframe, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate timeframe %q", name)
		}
		seen[name] = struct{}{}
		d, err := domrepo.Timeframe(name).Duration()
		if err != nil {
			return nil, err
		}
		if d < time.Second {
			return nil, fmt.Errorf("timeframe %q below 1s resolution", name)
		}
		tfs = append(tfs, Timeframe{Name: name, Width: d})
	}
	return tfs, nil
}
