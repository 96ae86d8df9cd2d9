package store

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transformstate/internal/metadata"
)

func newTestRedis(t *testing.T, primaryTerm int64) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedis(client, "", primaryTerm)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestRedis_CreateGetAndConditionalWrite(t *testing.T) {
	ctx := context.Background()
	st, mr := newTestRedis(t, 3)

	created, err := st.Index(ctx, newMeta("a"), IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.SeqNo)
	assert.Equal(t, int64(3), created.PrimaryTerm)
	assert.Equal(t, "0", mr.HGet("transform_metadata:a", fieldSeqNo))

	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, created.Equal(got), "got %+v", got)

	_, err = st.Index(ctx, newMeta("a"), IndexOptions{})
	assert.ErrorIs(t, err, ErrVersionConflict, "second create must conflict")

	updated, err := st.Index(ctx, got.MergeStats(metadata.TransformStats{PagesProcessed: 2}), IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.SeqNo)
	assert.Equal(t, int64(3), updated.Stats.PagesProcessed)

	_, err = st.Index(ctx, got, IndexOptions{})
	assert.ErrorIs(t, err, ErrVersionConflict, "stale seq_no must conflict")

	_, err = st.Index(ctx, got.WithVersion(1, 99), IndexOptions{})
	assert.ErrorIs(t, err, ErrVersionConflict, "wrong primary term must conflict")

	out, err := st.Index(ctx, newMeta("a").WithVersion(40, 7), IndexOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.SeqNo)
	assert.Equal(t, int64(3), out.PrimaryTerm)

	got, err = st.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, out.Equal(got), "got %+v", got)
}

func TestRedis_GetMissingAndVersionedWriteToMissing(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestRedis(t, 1)

	_, err := st.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Index(ctx, newMeta("x").WithVersion(4, 1), IndexOptions{})
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestRedis_IndexResultMatchesGet(t *testing.T) {
	st, _ := newTestRedis(t, 1)
	assertIndexMatchesGet(t, st)
}

func TestRedis_GetRejectsCorruptVersion(t *testing.T) {
	st, mr := newTestRedis(t, 1)
	mr.HSet("transform_metadata:bad", fieldSeqNo, "x", fieldPrimaryTerm, "1", fieldDoc, "{}")

	_, err := st.Get(context.Background(), "bad")
	assert.ErrorContains(t, err, fieldSeqNo)
}

// interleaveHook runs fn once, just before the first MULTI/EXEC pipeline is
// sent, so a write lands between the WATCHed read and the transaction.
type interleaveHook struct {
	once sync.Once
	fn   func()
}

func (h *interleaveHook) DialHook(next redis.DialHook) redis.DialHook          { return next }
func (h *interleaveHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }
func (h *interleaveHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.once.Do(h.fn)
		return next(ctx, cmds)
	}
}

func TestRedis_ConcurrentModificationAbortsTransaction(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedis(client, "", 1)
	t.Cleanup(func() { _ = st.Close() })

	base, err := st.Index(ctx, newMeta("a"), IndexOptions{})
	require.NoError(t, err)

	client.AddHook(&interleaveHook{fn: func() {
		other.HSet(ctx, "transform_metadata:a", fieldSeqNo, 5)
	}})

	_, err = st.Index(ctx, base.MergeStats(metadata.TransformStats{PagesProcessed: 1}), IndexOptions{})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, "5", mr.HGet("transform_metadata:a", fieldSeqNo), "aborted transaction must not write")
}
