package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"transformstate/internal/metadata"
)

const defaultTable = "transform_metadata"

// Postgres stores one row per metadata document with the version pair in
// dedicated columns. Conditional writes are single statements whose WHERE
// clause carries the expected version.
type Postgres struct {
	db          *sql.DB
	table       string
	primaryTerm int64
}

func OpenPostgres(ctx context.Context, dsn, table string, primaryTerm int64) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := NewPostgres(db, table, primaryTerm)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgres(db *sql.DB, table string, primaryTerm int64) *Postgres {
	if table == "" {
		table = defaultTable
	}
	if primaryTerm <= 0 {
		primaryTerm = 1
	}
	return &Postgres{db: db, table: pq.QuoteIdentifier(table), primaryTerm: primaryTerm}
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		id           TEXT PRIMARY KEY,
		seq_no       BIGINT NOT NULL,
		primary_term BIGINT NOT NULL,
		doc          JSONB NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (metadata.TransformMetadata, error) {
	var (
		v   stored
		doc []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT seq_no, primary_term, doc FROM `+s.table+` WHERE id = $1`, id,
	).Scan(&v.seqNo, &v.primaryTerm, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.TransformMetadata{}, ErrNotFound
	}
	if err != nil {
		return metadata.TransformMetadata{}, fmt.Errorf("postgres: get [%s]: %w", id, err)
	}
	return decodeStored(id, v, doc)
}

func (s *Postgres) Index(ctx context.Context, m metadata.TransformMetadata, opts IndexOptions) (metadata.TransformMetadata, error) {
	m = assignID(m)
	doc, err := storageCodec.Encode(m)
	if err != nil {
		return metadata.TransformMetadata{}, err
	}

	var seqNo int64
	switch {
	case opts.Overwrite:
		err = s.db.QueryRowContext(ctx, `INSERT INTO `+s.table+` AS t (id, seq_no, primary_term, doc)
			VALUES ($1, 0, $2, $3)
			ON CONFLICT (id) DO UPDATE SET seq_no = t.seq_no + 1, primary_term = EXCLUDED.primary_term,
				doc = EXCLUDED.doc, updated_at = now()
			RETURNING seq_no`, m.ID, s.primaryTerm, string(doc)).Scan(&seqNo)
	case !m.HasVersion():
		err = s.db.QueryRowContext(ctx, `INSERT INTO `+s.table+` (id, seq_no, primary_term, doc)
			VALUES ($1, 0, $2, $3)
			ON CONFLICT (id) DO NOTHING
			RETURNING seq_no`, m.ID, s.primaryTerm, string(doc)).Scan(&seqNo)
		if errors.Is(err, sql.ErrNoRows) {
			return metadata.TransformMetadata{}, fmt.Errorf("%w: [%s] already exists", ErrVersionConflict, m.ID)
		}
	default:
		err = s.db.QueryRowContext(ctx, `UPDATE `+s.table+`
			SET seq_no = seq_no + 1, primary_term = $2, doc = $3, updated_at = now()
			WHERE id = $1 AND seq_no = $4 AND primary_term = $5
			RETURNING seq_no`, m.ID, s.primaryTerm, string(doc), m.SeqNo, m.PrimaryTerm).Scan(&seqNo)
		if errors.Is(err, sql.ErrNoRows) {
			return metadata.TransformMetadata{}, fmt.Errorf("%w: [%s] required seq_no [%d], primary_term [%d]",
				ErrVersionConflict, m.ID, m.SeqNo, m.PrimaryTerm)
		}
	}
	if err != nil {
		return metadata.TransformMetadata{}, fmt.Errorf("postgres: index [%s]: %w", m.ID, err)
	}
	return decodeStored(m.ID, stored{seqNo: seqNo, primaryTerm: s.primaryTerm}, doc)
}

func (s *Postgres) Close() error { return s.db.Close() }
