package store

import (
	"context"
	"sync"

	"transformstate/internal/metadata"
)

type memEntry struct {
	version stored
	doc     []byte
}

// Memory keeps encoded documents in a map. It is the default backend and
// the one used by tests.
type Memory struct {
	primaryTerm int64

	mu   sync.RWMutex
	docs map[string]memEntry
}

func NewMemory(primaryTerm int64) *Memory {
	if primaryTerm <= 0 {
		primaryTerm = 1
	}
	return &Memory{primaryTerm: primaryTerm, docs: map[string]memEntry{}}
}

func (s *Memory) Get(_ context.Context, id string) (metadata.TransformMetadata, error) {
	s.mu.RLock()
	e, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return metadata.TransformMetadata{}, ErrNotFound
	}
	return decodeStored(id, e.version, e.doc)
}

func (s *Memory) Index(_ context.Context, m metadata.TransformMetadata, opts IndexOptions) (metadata.TransformMetadata, error) {
	m = assignID(m)
	doc, err := storageCodec.Encode(m)
	if err != nil {
		return metadata.TransformMetadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var cur *stored
	if e, ok := s.docs[m.ID]; ok {
		cur = &e.version
	}
	next, err := nextVersion(m, cur, s.primaryTerm, opts)
	if err != nil {
		return metadata.TransformMetadata{}, err
	}
	s.docs[m.ID] = memEntry{version: next, doc: doc}
	return decodeStored(m.ID, next, doc)
}

func (s *Memory) Close() error { return nil }
