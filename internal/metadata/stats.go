package metadata

import (
	"maps"
	"time"
)

// TransformStats holds the per-run counters of a transform. All fields only
// grow within a run.
type TransformStats struct {
	PagesProcessed     int64
	DocumentsProcessed int64
	DocumentsIndexed   int64
	IndexTimeInMillis  int64
	SearchTimeInMillis int64
}

// Add returns the field-wise sum of s and delta.
func (s TransformStats) Add(delta TransformStats) TransformStats {
	return TransformStats{
		PagesProcessed:     s.PagesProcessed + delta.PagesProcessed,
		DocumentsProcessed: s.DocumentsProcessed + delta.DocumentsProcessed,
		DocumentsIndexed:   s.DocumentsIndexed + delta.DocumentsIndexed,
		IndexTimeInMillis:  s.IndexTimeInMillis + delta.IndexTimeInMillis,
		SearchTimeInMillis: s.SearchTimeInMillis + delta.SearchTimeInMillis,
	}
}

// ContinuousStats tracks continuous-mode progress: the timestamp of the last
// completed execution and how many documents each source index is behind.
type ContinuousStats struct {
	LastTimestamp   *time.Time
	DocumentsBehind map[string]int64
}

func (c *ContinuousStats) clone() *ContinuousStats {
	if c == nil {
		return nil
	}
	out := &ContinuousStats{DocumentsBehind: maps.Clone(c.DocumentsBehind)}
	if c.LastTimestamp != nil {
		ts := *c.LastTimestamp
		out.LastTimestamp = &ts
	}
	return out
}

func (c *ContinuousStats) equal(o *ContinuousStats) bool {
	if c == nil || o == nil {
		return c == o
	}
	if (c.LastTimestamp == nil) != (o.LastTimestamp == nil) {
		return false
	}
	if c.LastTimestamp != nil && !c.LastTimestamp.Equal(*o.LastTimestamp) {
		return false
	}
	if (c.DocumentsBehind == nil) != (o.DocumentsBehind == nil) {
		return false
	}
	return maps.Equal(c.DocumentsBehind, o.DocumentsBehind)
}
