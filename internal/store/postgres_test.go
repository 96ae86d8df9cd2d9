package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transformstate/internal/metadata"
)

const (
	createSQL    = `INSERT INTO "tm" \(id, seq_no, primary_term, doc\).*ON CONFLICT \(id\) DO NOTHING`
	overwriteSQL = `INSERT INTO "tm" AS t .*ON CONFLICT \(id\) DO UPDATE`
	updateSQL    = `UPDATE "tm".*WHERE id = \$1 AND seq_no = \$4 AND primary_term = \$5`
	getSQL       = `SELECT seq_no, primary_term, doc FROM "tm" WHERE id = \$1`
)

// docArg matches any value and keeps the document text that was written.
type docArg struct{ doc string }

func (a *docArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	a.doc = s
	return ok
}

func newTestPostgres(t *testing.T, primaryTerm int64) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return NewPostgres(db, "tm", primaryTerm), mock
}

func seqRows(seq ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"seq_no"})
	for _, s := range seq {
		rows.AddRow(s)
	}
	return rows
}

func docRows(seqNo, primaryTerm int64, doc string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"seq_no", "primary_term", "doc"}).AddRow(seqNo, primaryTerm, []byte(doc))
}

func TestPostgres_EnsureSchema(t *testing.T) {
	st, mock := newTestPostgres(t, 1)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "tm"`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, st.EnsureSchema(context.Background()))
}

func TestPostgres_CreateGetAndConditionalWrite(t *testing.T) {
	ctx := context.Background()
	st, mock := newTestPostgres(t, 3)

	doc := &docArg{}
	mock.ExpectQuery(createSQL).WithArgs("a", int64(3), doc).WillReturnRows(seqRows(0))
	created, err := st.Index(ctx, newMeta("a"), IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.SeqNo)
	assert.Equal(t, int64(3), created.PrimaryTerm)

	mock.ExpectQuery(getSQL).WithArgs("a").WillReturnRows(docRows(0, 3, doc.doc))
	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, created.Equal(got), "got %+v", got)

	mock.ExpectQuery(createSQL).WithArgs("a", int64(3), sqlmock.AnyArg()).WillReturnRows(seqRows())
	_, err = st.Index(ctx, newMeta("a"), IndexOptions{})
	assert.ErrorIs(t, err, ErrVersionConflict, "second create must conflict")

	mock.ExpectQuery(updateSQL).WithArgs("a", int64(3), sqlmock.AnyArg(), int64(0), int64(3)).WillReturnRows(seqRows(1))
	updated, err := st.Index(ctx, got.MergeStats(metadata.TransformStats{PagesProcessed: 2}), IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.SeqNo)
	assert.Equal(t, int64(3), updated.Stats.PagesProcessed)

	mock.ExpectQuery(updateSQL).WithArgs("a", int64(3), sqlmock.AnyArg(), int64(0), int64(3)).WillReturnRows(seqRows())
	_, err = st.Index(ctx, got, IndexOptions{})
	assert.ErrorIs(t, err, ErrVersionConflict, "stale seq_no must conflict")

	mock.ExpectQuery(overwriteSQL).WithArgs("a", int64(3), sqlmock.AnyArg()).WillReturnRows(seqRows(2))
	out, err := st.Index(ctx, newMeta("a").WithVersion(40, 7), IndexOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.SeqNo)
	assert.Equal(t, int64(3), out.PrimaryTerm)
}

func TestPostgres_GetMissing(t *testing.T) {
	st, mock := newTestPostgres(t, 1)
	mock.ExpectQuery(getSQL).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"seq_no", "primary_term", "doc"}))

	_, err := st.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_IndexResultMatchesGet(t *testing.T) {
	ctx := context.Background()
	st, mock := newTestPostgres(t, 1)

	doc := &docArg{}
	mock.ExpectQuery(createSQL).WithArgs("rt", int64(1), doc).WillReturnRows(seqRows(0))
	saved, err := st.Index(ctx, narrowedMeta("rt"), IndexOptions{})
	require.NoError(t, err)
	assert.True(t, saved.LastUpdatedAt.Equal(fixedNow), "index result has stored precision: %v", saved.LastUpdatedAt)
	assert.Equal(t, int64(1), saved.AfterKey["n"])

	mock.ExpectQuery(getSQL).WithArgs("rt").WillReturnRows(docRows(0, 1, doc.doc))
	got, err := st.Get(ctx, "rt")
	require.NoError(t, err)
	assert.True(t, saved.Equal(got), "index %+v\nget   %+v", saved, got)
}

func TestPostgres_DriverErrorIsWrapped(t *testing.T) {
	st, mock := newTestPostgres(t, 1)
	boom := errors.New("connection reset")
	mock.ExpectQuery(createSQL).WillReturnError(boom)

	_, err := st.Index(context.Background(), newMeta("a"), IndexOptions{})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrVersionConflict)
}
