package codec

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"transformstate/internal/document"
	"transformstate/internal/metadata"
)

func fullMetadata() metadata.TransformMetadata {
	reason := "shard failure"
	last := time.UnixMilli(1_699_999_000_000).UTC()
	m := metadata.New("meta-1", "sales-rollup", metadata.StatusFailed, metadata.TransformStats{
		PagesProcessed:     2,
		DocumentsProcessed: 200,
		DocumentsIndexed:   20,
		IndexTimeInMillis:  33,
		SearchTimeInMillis: 44,
	}, time.UnixMilli(1_700_000_000_123).UTC())
	m.SeqNo, m.PrimaryTerm = 7, 3
	m.FailureReason = &reason
	m.AfterKey = map[string]any{"region": "eu", "day": int64(1699920000000), "ratio": 0.5, "tags": []any{"a", nil}}
	m.ShardIDToGlobalCheckpoint = map[metadata.ShardID]int64{
		metadata.NewShardID("sales", 0): 100,
		metadata.NewShardID("sales", 1): -1,
	}
	m.ContinuousStats = &metadata.ContinuousStats{
		LastTimestamp:   &last,
		DocumentsBehind: map[string]int64{"sales": 12},
	}
	return m
}

func minimalMetadata() metadata.TransformMetadata {
	return metadata.New("meta-2", "one-shot", metadata.StatusInit, metadata.TransformStats{}, time.UnixMilli(1_700_000_000_000).UTC())
}

func TestBinaryRoundTrip(t *testing.T) {
	for name, m := range map[string]metadata.TransformMetadata{"full": fullMetadata(), "minimal": minimalMetadata()} {
		t.Run(name, func(t *testing.T) {
			m.LastUpdatedAt = m.LastUpdatedAt.Add(789 * time.Nanosecond)
			b, err := BinaryCodec{}.Encode(m)
			require.NoError(t, err)

			got, err := BinaryCodec{}.Decode(b, Version{})
			require.NoError(t, err)
			assert.True(t, m.Equal(got), "want %+v\ngot  %+v", m, got)
		})
	}
}

func TestBinaryRoundTripGoIntAfterKey(t *testing.T) {
	m := minimalMetadata().WithAfterKey(map[string]any{"n": 1})
	m.AfterKey["raw"] = int32(7)

	b, err := BinaryCodec{}.Encode(m)
	require.NoError(t, err)
	got, err := BinaryCodec{}.Decode(b, Version{})
	require.NoError(t, err)
	assert.True(t, m.Equal(got), "want %+v\ngot  %+v", m.AfterKey, got.AfterKey)
}

func TestBinaryShardIDBoundaries(t *testing.T) {
	for _, id := range []int{-1, 0, math.MaxInt32, math.MinInt32} {
		m := minimalMetadata().WithCheckpoints(map[metadata.ShardID]int64{metadata.NewShardID("logs", id): 5})
		b, err := BinaryCodec{}.Encode(m)
		require.NoError(t, err, "shard %d", id)

		got, err := BinaryCodec{}.Decode(b, Version{})
		require.NoError(t, err, "shard %d", id)
		assert.True(t, m.Equal(got), "shard %d: got %+v", id, got.ShardIDToGlobalCheckpoint)
	}

	for _, id := range []int{math.MaxInt32 + 1, math.MinInt32 - 1} {
		m := minimalMetadata().WithCheckpoints(map[metadata.ShardID]int64{metadata.NewShardID("logs", id): 5})
		_, err := BinaryCodec{}.Encode(m)
		assert.ErrorContains(t, err, ShardIDToGlobalCheckpointField, "shard %d", id)
	}
}

func TestBinaryDecodeRejectsTruncatedAndTrailing(t *testing.T) {
	b, err := BinaryCodec{}.Encode(fullMetadata())
	require.NoError(t, err)

	for _, cut := range []int{0, 1, len(b) / 2, len(b) - 1} {
		_, err := BinaryCodec{}.Decode(b[:cut], Version{})
		assert.Error(t, err, "cut at %d", cut)
	}
	_, err = BinaryCodec{}.Decode(append(b, 0), Version{})
	assert.Error(t, err)
}

func TestBinaryDecodeRejectsBadStatusOrdinal(t *testing.T) {
	m := minimalMetadata()
	m.Status = metadata.Status(9)
	b, err := BinaryCodec{}.Encode(m)
	require.NoError(t, err)
	_, err = BinaryCodec{}.Decode(b, Version{})
	assert.ErrorIs(t, err, metadata.ErrUnknownStatus)
}

func TestDocumentRoundTrip(t *testing.T) {
	for _, ct := range []document.ContentType{document.JSON, document.YAML} {
		for _, withType := range []bool{true, false} {
			c := DocumentCodec{ContentType: ct, WithType: withType}
			for name, m := range map[string]metadata.TransformMetadata{"full": fullMetadata(), "minimal": minimalMetadata()} {
				t.Run(ct.String()+"/"+name, func(t *testing.T) {
					b, err := c.Encode(m)
					require.NoError(t, err)

					got, err := c.Decode(b, VersionOf(m))
					require.NoError(t, err)
					assert.True(t, m.Equal(got), "want %+v\ngot  %+v", m, got)
				})
			}
		}
	}
}

func TestDocumentOmitsIdentityAndVersion(t *testing.T) {
	b, err := DocumentCodec{ContentType: document.JSON}.Encode(fullMetadata())
	require.NoError(t, err)
	for _, key := range []string{"id", "_id", "seq_no", "primary_term"} {
		assert.False(t, gjson.GetBytes(b, key).Exists(), "unexpected key %s in %s", key, b)
	}

	got, err := DocumentCodec{ContentType: document.JSON}.Decode(b, UnassignedVersion("other"))
	require.NoError(t, err)
	assert.Equal(t, "other", got.ID)
	assert.Equal(t, metadata.UnassignedSeqNo, got.SeqNo)
	assert.Equal(t, metadata.UnassignedPrimaryTerm, got.PrimaryTerm)
}

func TestDocumentNullHandling(t *testing.T) {
	b, err := NewDocumentCodec(document.JSON).Encode(minimalMetadata())
	require.NoError(t, err)

	root := gjson.GetBytes(b, TypeWrapperField)
	require.True(t, root.IsObject(), "wrapper missing: %s", b)
	assert.False(t, root.Get(AfterKeyField).Exists(), "after_key must be omitted: %s", b)
	assert.False(t, root.Get(ShardIDToGlobalCheckpointField).Exists())
	assert.False(t, root.Get(ContinuousStatsField).Exists())

	reason := root.Get(FailureReasonField)
	assert.True(t, reason.Exists(), "failure_reason must be present: %s", b)
	assert.Equal(t, gjson.Null, reason.Type)
}

func TestDocumentWireShape(t *testing.T) {
	b, err := DocumentCodec{ContentType: document.JSON}.Encode(fullMetadata())
	require.NoError(t, err)

	doc := gjson.ParseBytes(b)
	assert.Equal(t, "failed", doc.Get(StatusField).String())
	assert.Equal(t, int64(1_700_000_000_123), doc.Get(LastUpdatedAtField).Int())
	assert.Equal(t, int64(100), doc.Get(ShardIDToGlobalCheckpointField).Map()["[sales][0]"].Int())
	assert.Equal(t, int64(200), doc.Get("stats.documents_processed").Int())
	assert.Equal(t, int64(12), doc.Get("continuous_stats.documents_behind.sales").Int())

	var keys []string
	doc.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	assert.Equal(t, []string{
		TransformIDField, AfterKeyField, LastUpdatedAtField, StatusField, FailureReasonField,
		StatsField, ShardIDToGlobalCheckpointField, ContinuousStatsField,
	}, keys)
}

const validDoc = `{
  "ignored_future_field": {"x": [1, 2]},
  "status": "Started",
  "stats": {"pages_processed": 1, "documents_processed": 2, "documents_indexed": 3,
            "index_time_in_millis": 4, "search_time_in_millis": 5},
  "last_updated_at": 1700000000000,
  "failure_reason": null,
  "transform_id": "t1"
}`

func TestDocumentDecodeAnyOrderCaseInsensitiveStatus(t *testing.T) {
	got, err := DocumentCodec{ContentType: document.JSON}.Decode([]byte(validDoc), UnassignedVersion("m"))
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusStarted, got.Status)
	assert.Equal(t, "t1", got.TransformID)
	assert.Nil(t, got.AfterKey)
	assert.Nil(t, got.FailureReason)
	assert.Nil(t, got.ShardIDToGlobalCheckpoint)
	assert.Nil(t, got.ContinuousStats)
	assert.Equal(t, metadata.TransformStats{PagesProcessed: 1, DocumentsProcessed: 2, DocumentsIndexed: 3, IndexTimeInMillis: 4, SearchTimeInMillis: 5}, got.Stats)
}

func TestDocumentDecodeWholeFloatCounters(t *testing.T) {
	doc := []byte(`{"transform_id":"t1","last_updated_at":1.7e12,"status":"started",` +
		`"stats":{"pages_processed":1.0,"documents_processed":2,"documents_indexed":0,"index_time_in_millis":0,"search_time_in_millis":0}}`)
	got, err := DocumentCodec{ContentType: document.JSON}.Decode(doc, Version{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Stats.PagesProcessed)
	assert.Equal(t, int64(1_700_000_000_000), got.LastUpdatedAt.UnixMilli())

	frac := []byte(`{"transform_id":"t1","last_updated_at":1,"status":"started",` +
		`"stats":{"pages_processed":1.5,"documents_processed":2,"documents_indexed":0,"index_time_in_millis":0,"search_time_in_millis":0}}`)
	_, err = DocumentCodec{ContentType: document.JSON}.Decode(frac, Version{})
	assert.Error(t, err)
}

func TestDocumentDecodeUnknownStatus(t *testing.T) {
	doc := []byte(`{"transform_id":"t1","last_updated_at":1,"status":"bogus","stats":{}}`)
	_, err := DocumentCodec{ContentType: document.JSON}.Decode(doc, Version{})
	require.Error(t, err)
	assert.ErrorIs(t, err, metadata.ErrUnknownStatus)
}

func TestDocumentDecodeMissingRequiredFields(t *testing.T) {
	stats := `"stats":{"pages_processed":0,"documents_processed":0,"documents_indexed":0,"index_time_in_millis":0,"search_time_in_millis":0}`
	cases := map[string]string{
		TransformIDField:   `{"last_updated_at":1,"status":"init",` + stats + `}`,
		LastUpdatedAtField: `{"transform_id":"t","status":"init",` + stats + `}`,
		StatusField:        `{"transform_id":"t","last_updated_at":1,` + stats + `}`,
		StatsField:         `{"transform_id":"t","last_updated_at":1,"status":"init"}`,
	}
	for field, doc := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := DocumentCodec{ContentType: document.JSON}.Decode([]byte(doc), Version{})
			var missing *MissingFieldError
			require.True(t, errors.As(err, &missing), "want MissingFieldError, got %v", err)
			assert.Equal(t, field, missing.Field)
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestDocumentDecodeMissingWrapper(t *testing.T) {
	_, err := NewDocumentCodec(document.JSON).Decode([]byte(validDoc), Version{})
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, TypeWrapperField, missing.Field)
}

func TestDocumentDecodeBadShardKey(t *testing.T) {
	doc := []byte(`{"transform_id":"t","last_updated_at":1,"status":"init","shard_id_to_global_checkpoint":{"nope":1}}`)
	_, err := DocumentCodec{ContentType: document.JSON}.Decode(doc, Version{})
	assert.Error(t, err)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "yaml", "binary"} {
		c, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	_, err := ByName("smile")
	assert.Error(t, err)
}

func TestInstrumentDelegates(t *testing.T) {
	c := Instrument(BinaryCodec{})
	b, err := c.Encode(fullMetadata())
	require.NoError(t, err)
	got, err := c.Decode(b, Version{})
	require.NoError(t, err)
	assert.True(t, fullMetadata().Equal(got))

	_, err = c.Decode([]byte{1}, Version{})
	assert.Error(t, err)
}
