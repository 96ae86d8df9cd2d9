// Package metadata holds the run-state record of a transform job.
//
// TransformMetadata values are treated as immutable: every With* helper and
// MergeStats return a fresh copy that shares no maps or pointers with the
// receiver, so a value can be handed to other goroutines freely.
package metadata

import (
	"maps"
	"reflect"
	"time"
)

// Version sentinels used before the storage layer has assigned a version.
const (
	UnassignedSeqNo       int64 = -2
	UnassignedPrimaryTerm int64 = 0
)

// TransformMetadata is the persisted run state of one transform job.
type TransformMetadata struct {
	// ID is the storage document id; SeqNo and PrimaryTerm are the
	// optimistic-concurrency pair the store last reported for it.
	ID          string
	SeqNo       int64
	PrimaryTerm int64

	TransformID string
	// AfterKey is the composite-aggregation cursor. Nil means not started
	// or not a continuous transform.
	AfterKey      map[string]any
	LastUpdatedAt time.Time
	Status        Status
	// FailureReason is set when Status moves to StatusFailed.
	FailureReason *string
	Stats         TransformStats

	ShardIDToGlobalCheckpoint map[ShardID]int64
	ContinuousStats           *ContinuousStats
}

// New returns metadata that has not yet been persisted.
func New(id, transformID string, status Status, stats TransformStats, lastUpdatedAt time.Time) TransformMetadata {
	return TransformMetadata{
		ID:            id,
		SeqNo:         UnassignedSeqNo,
		PrimaryTerm:   UnassignedPrimaryTerm,
		TransformID:   transformID,
		LastUpdatedAt: lastUpdatedAt,
		Status:        status,
		Stats:         stats,
	}
}

// HasVersion reports whether the store has assigned a seqNo/primaryTerm.
func (m TransformMetadata) HasVersion() bool {
	return m.SeqNo != UnassignedSeqNo && m.PrimaryTerm != UnassignedPrimaryTerm
}

// Clone returns a deep copy of m.
func (m TransformMetadata) Clone() TransformMetadata {
	out := m
	out.AfterKey = cloneObject(m.AfterKey)
	if m.FailureReason != nil {
		r := *m.FailureReason
		out.FailureReason = &r
	}
	out.ShardIDToGlobalCheckpoint = maps.Clone(m.ShardIDToGlobalCheckpoint)
	out.ContinuousStats = m.ContinuousStats.clone()
	return out
}

// MergeStats adds delta to the five stats counters. Everything else is
// carried over unchanged.
func (m TransformMetadata) MergeStats(delta TransformStats) TransformMetadata {
	out := m.Clone()
	out.Stats = m.Stats.Add(delta)
	return out
}

func (m TransformMetadata) WithStatus(s Status, at time.Time) TransformMetadata {
	out := m.Clone()
	out.Status = s
	out.LastUpdatedAt = at
	return out
}

// WithFailure moves m to StatusFailed and records reason.
func (m TransformMetadata) WithFailure(reason string, at time.Time) TransformMetadata {
	out := m.WithStatus(StatusFailed, at)
	out.FailureReason = &reason
	return out
}

func (m TransformMetadata) WithAfterKey(afterKey map[string]any) TransformMetadata {
	out := m.Clone()
	out.AfterKey = cloneObject(afterKey)
	return out
}

func (m TransformMetadata) WithCheckpoints(cp map[ShardID]int64) TransformMetadata {
	out := m.Clone()
	out.ShardIDToGlobalCheckpoint = maps.Clone(cp)
	return out
}

func (m TransformMetadata) WithContinuousStats(cs *ContinuousStats) TransformMetadata {
	out := m.Clone()
	out.ContinuousStats = cs.clone()
	return out
}

func (m TransformMetadata) WithVersion(seqNo, primaryTerm int64) TransformMetadata {
	out := m.Clone()
	out.SeqNo, out.PrimaryTerm = seqNo, primaryTerm
	return out
}

func (m TransformMetadata) WithLastUpdatedAt(at time.Time) TransformMetadata {
	out := m.Clone()
	out.LastUpdatedAt = at
	return out
}

// Equal compares every field, including identity and version.
func (m TransformMetadata) Equal(o TransformMetadata) bool {
	if m.ID != o.ID || m.SeqNo != o.SeqNo || m.PrimaryTerm != o.PrimaryTerm {
		return false
	}
	return m.EqualContent(o)
}

// EqualContent compares everything except ID, SeqNo and PrimaryTerm, which
// the document form does not carry.
func (m TransformMetadata) EqualContent(o TransformMetadata) bool {
	if m.TransformID != o.TransformID || m.Status != o.Status || m.Stats != o.Stats {
		return false
	}
	if !m.LastUpdatedAt.Equal(o.LastUpdatedAt) {
		return false
	}
	if (m.FailureReason == nil) != (o.FailureReason == nil) {
		return false
	}
	if m.FailureReason != nil && *m.FailureReason != *o.FailureReason {
		return false
	}
	if (m.AfterKey == nil) != (o.AfterKey == nil) || !reflect.DeepEqual(cloneObject(m.AfterKey), cloneObject(o.AfterKey)) {
		return false
	}
	if (m.ShardIDToGlobalCheckpoint == nil) != (o.ShardIDToGlobalCheckpoint == nil) ||
		!maps.Equal(m.ShardIDToGlobalCheckpoint, o.ShardIDToGlobalCheckpoint) {
		return false
	}
	return m.ContinuousStats.equal(o.ContinuousStats)
}

func cloneObject(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies v and widens int, int32 and float32 to the int64
// and float64 the codecs read back, so a cloned value compares equal to its
// decoded form.
func cloneValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case map[string]any:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
