// Package store persists transform metadata in document form, keyed by id,
// and guards every write with the seq_no/primary_term pair.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"transformstate/internal/codec"
	"transformstate/internal/document"
	"transformstate/internal/metadata"
)

var (
	ErrNotFound        = errors.New("store: transform metadata not found")
	ErrVersionConflict = errors.New("store: version conflict")
)

type IndexOptions struct {
	// Overwrite skips the version check. Replication uses it to mirror the
	// value of another node.
	Overwrite bool
}

// Store is a versioned document store for transform metadata.
//
// Index creates the document when m carries no version and fails with
// ErrVersionConflict if the id is taken. When m carries a version the write
// only succeeds if it matches the stored pair. The returned value carries
// the newly assigned version and is decoded from the stored document, so it
// equals what a following Get returns.
type Store interface {
	Get(ctx context.Context, id string) (metadata.TransformMetadata, error)
	Index(ctx context.Context, m metadata.TransformMetadata, opts IndexOptions) (metadata.TransformMetadata, error)
	Close() error
}

// storageCodec is the on-disk form: wrapped JSON.
var storageCodec = codec.Instrument(codec.NewDocumentCodec(document.JSON))

type stored struct {
	seqNo       int64
	primaryTerm int64
}

// nextVersion validates m against the current stored version (nil when the
// document does not exist) and returns the version the write will get.
func nextVersion(m metadata.TransformMetadata, cur *stored, primaryTerm int64, opts IndexOptions) (stored, error) {
	next := stored{seqNo: 0, primaryTerm: primaryTerm}
	if cur != nil {
		next.seqNo = cur.seqNo + 1
	}
	if opts.Overwrite {
		return next, nil
	}
	switch {
	case !m.HasVersion() && cur != nil:
		return next, fmt.Errorf("%w: [%s] already exists", ErrVersionConflict, m.ID)
	case m.HasVersion() && cur == nil:
		return next, fmt.Errorf("%w: [%s] required seq_no [%d], primary_term [%d] but no document was found",
			ErrVersionConflict, m.ID, m.SeqNo, m.PrimaryTerm)
	case m.HasVersion() && (cur.seqNo != m.SeqNo || cur.primaryTerm != m.PrimaryTerm):
		return next, fmt.Errorf("%w: [%s] required seq_no [%d], primary_term [%d] but current is [%d], [%d]",
			ErrVersionConflict, m.ID, m.SeqNo, m.PrimaryTerm, cur.seqNo, cur.primaryTerm)
	}
	return next, nil
}

// assignID gives new documents without an id a random one.
func assignID(m metadata.TransformMetadata) metadata.TransformMetadata {
	if m.ID == "" {
		m = m.Clone()
		m.ID = uuid.NewString()
	}
	return m
}

func decodeStored(id string, v stored, doc []byte) (metadata.TransformMetadata, error) {
	m, err := storageCodec.Decode(doc, codec.Version{ID: id, SeqNo: v.seqNo, PrimaryTerm: v.primaryTerm})
	if err != nil {
		return m, fmt.Errorf("store: corrupt document [%s]: %w", id, err)
	}
	return m, nil
}
