package codec

import (
	"fmt"
	"sort"
	"time"

	"transformstate/internal/metadata"
	"transformstate/internal/wire"
)

// BinaryCodec is the compact form for node-to-node transport. It carries
// every field including identity and version, in a fixed order with
// presence flags ahead of each optional field.
type BinaryCodec struct{}

func (BinaryCodec) Name() string { return "binary" }

func (BinaryCodec) Encode(m metadata.TransformMetadata) ([]byte, error) {
	w := wire.NewWriter()
	if err := WriteBinary(w, m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode ignores v; identity travels in the stream. Trailing bytes are an
// error.
func (BinaryCodec) Decode(data []byte, _ Version) (metadata.TransformMetadata, error) {
	r := wire.NewReader(data)
	m, err := ReadBinary(r)
	if err != nil {
		return metadata.TransformMetadata{}, err
	}
	if r.Remaining() != 0 {
		return metadata.TransformMetadata{}, fmt.Errorf("transform metadata: %d trailing bytes", r.Remaining())
	}
	return m, nil
}

// WriteBinary appends m to w. The field order here is the wire contract;
// ReadBinary must mirror it exactly.
func WriteBinary(w *wire.Writer, m metadata.TransformMetadata) error {
	w.WriteString(m.ID)
	w.WriteZLong(m.SeqNo)
	w.WriteZLong(m.PrimaryTerm)
	w.WriteString(m.TransformID)
	w.WriteBool(m.AfterKey != nil)
	if m.AfterKey != nil {
		if err := w.WriteGenericMap(m.AfterKey); err != nil {
			return fmt.Errorf("after_key: %w", err)
		}
	}
	writeInstant(w, m.LastUpdatedAt)
	w.WriteEnum(int(m.Status))
	w.WriteOptionalString(m.FailureReason)
	WriteStatsBinary(w, m.Stats)
	w.WriteBool(m.ShardIDToGlobalCheckpoint != nil)
	if m.ShardIDToGlobalCheckpoint != nil {
		if err := writeCheckpoints(w, m.ShardIDToGlobalCheckpoint); err != nil {
			return fmt.Errorf("%s: %w", ShardIDToGlobalCheckpointField, err)
		}
	}
	w.WriteBool(m.ContinuousStats != nil)
	if m.ContinuousStats != nil {
		writeContinuousStats(w, m.ContinuousStats)
	}
	return nil
}

// ReadBinary consumes one record from r.
func ReadBinary(r *wire.Reader) (metadata.TransformMetadata, error) {
	var (
		m   metadata.TransformMetadata
		err error
	)
	fail := func(field string, err error) (metadata.TransformMetadata, error) {
		return metadata.TransformMetadata{}, fmt.Errorf("transform metadata: reading %s: %w", field, err)
	}

	if m.ID, err = r.ReadString(); err != nil {
		return fail("id", err)
	}
	if m.SeqNo, err = r.ReadZLong(); err != nil {
		return fail("seq_no", err)
	}
	if m.PrimaryTerm, err = r.ReadZLong(); err != nil {
		return fail("primary_term", err)
	}
	if m.TransformID, err = r.ReadString(); err != nil {
		return fail(TransformIDField, err)
	}
	present, err := r.ReadBool()
	if err != nil {
		return fail(AfterKeyField, err)
	}
	if present {
		if m.AfterKey, err = r.ReadGenericMap(); err != nil {
			return fail(AfterKeyField, err)
		}
	}
	if m.LastUpdatedAt, err = readInstant(r); err != nil {
		return fail(LastUpdatedAtField, err)
	}
	ordinal, err := r.ReadEnum()
	if err != nil {
		return fail(StatusField, err)
	}
	if m.Status, err = metadata.StatusFromOrdinal(ordinal); err != nil {
		return fail(StatusField, err)
	}
	if m.FailureReason, err = r.ReadOptionalString(); err != nil {
		return fail(FailureReasonField, err)
	}
	if m.Stats, err = ReadStatsBinary(r); err != nil {
		return fail(StatsField, err)
	}
	if present, err = r.ReadBool(); err != nil {
		return fail(ShardIDToGlobalCheckpointField, err)
	}
	if present {
		if m.ShardIDToGlobalCheckpoint, err = readCheckpoints(r); err != nil {
			return fail(ShardIDToGlobalCheckpointField, err)
		}
	}
	if present, err = r.ReadBool(); err != nil {
		return fail(ContinuousStatsField, err)
	}
	if present {
		if m.ContinuousStats, err = readContinuousStats(r); err != nil {
			return fail(ContinuousStatsField, err)
		}
	}
	return m, nil
}

func writeInstant(w *wire.Writer, t time.Time) {
	w.WriteZLong(t.Unix())
	w.WriteVInt(t.Nanosecond())
}

func readInstant(r *wire.Reader) (time.Time, error) {
	sec, err := r.ReadZLong()
	if err != nil {
		return time.Time{}, err
	}
	nsec, err := r.ReadVInt()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, int64(nsec)).UTC(), nil
}

// WriteStatsBinary writes the five counters in declaration order.
func WriteStatsBinary(w *wire.Writer, s metadata.TransformStats) {
	w.WriteVLong(s.PagesProcessed)
	w.WriteVLong(s.DocumentsProcessed)
	w.WriteVLong(s.DocumentsIndexed)
	w.WriteVLong(s.IndexTimeInMillis)
	w.WriteVLong(s.SearchTimeInMillis)
}

func ReadStatsBinary(r *wire.Reader) (metadata.TransformStats, error) {
	var s metadata.TransformStats
	for _, dst := range []*int64{&s.PagesProcessed, &s.DocumentsProcessed, &s.DocumentsIndexed, &s.IndexTimeInMillis, &s.SearchTimeInMillis} {
		v, err := r.ReadVLong()
		if err != nil {
			return s, err
		}
		*dst = v
	}
	return s, nil
}

func writeShardID(w *wire.Writer, s metadata.ShardID) error {
	if !wire.FitsVInt(s.ID) {
		return fmt.Errorf("shard [%s][%d]: id outside the 32-bit range", s.Index.Name, s.ID)
	}
	w.WriteString(s.Index.Name)
	w.WriteString(s.Index.UUID)
	w.WriteVInt(s.ID)
	return nil
}

func readShardID(r *wire.Reader) (metadata.ShardID, error) {
	var s metadata.ShardID
	var err error
	if s.Index.Name, err = r.ReadString(); err != nil {
		return s, err
	}
	if s.Index.UUID, err = r.ReadString(); err != nil {
		return s, err
	}
	s.ID, err = r.ReadVInt()
	return s, err
}

func writeCheckpoints(w *wire.Writer, cp map[metadata.ShardID]int64) error {
	shards := make([]metadata.ShardID, 0, len(cp))
	for s := range cp {
		shards = append(shards, s)
	}
	sort.Slice(shards, func(i, j int) bool {
		if shards[i].Index != shards[j].Index {
			if shards[i].Index.Name != shards[j].Index.Name {
				return shards[i].Index.Name < shards[j].Index.Name
			}
			return shards[i].Index.UUID < shards[j].Index.UUID
		}
		return shards[i].ID < shards[j].ID
	})
	w.WriteVInt(len(shards))
	for _, s := range shards {
		if err := writeShardID(w, s); err != nil {
			return err
		}
		w.WriteZLong(cp[s])
	}
	return nil
}

func readCheckpoints(r *wire.Reader) (map[metadata.ShardID]int64, error) {
	n, err := r.ReadSize()
	if err != nil {
		return nil, err
	}
	out := make(map[metadata.ShardID]int64, min(n, r.Remaining()))
	for range n {
		s, err := readShardID(r)
		if err != nil {
			return nil, err
		}
		if out[s], err = r.ReadZLong(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeContinuousStats(w *wire.Writer, cs *metadata.ContinuousStats) {
	w.WriteBool(cs.LastTimestamp != nil)
	if cs.LastTimestamp != nil {
		writeInstant(w, *cs.LastTimestamp)
	}
	w.WriteBool(cs.DocumentsBehind != nil)
	if cs.DocumentsBehind != nil {
		w.WriteStringLongMap(cs.DocumentsBehind)
	}
}

func readContinuousStats(r *wire.Reader) (*metadata.ContinuousStats, error) {
	cs := &metadata.ContinuousStats{}
	present, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if present {
		ts, err := readInstant(r)
		if err != nil {
			return nil, err
		}
		cs.LastTimestamp = &ts
	}
	if present, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if present {
		if cs.DocumentsBehind, err = r.ReadStringLongMap(); err != nil {
			return nil, err
		}
	}
	return cs, nil
}
