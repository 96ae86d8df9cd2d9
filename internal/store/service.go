package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transformstate/internal/logging"
	"transformstate/internal/metadata"
)

// Publisher receives every value the Service writes. Sinks implement it.
type Publisher interface {
	Push(ctx context.Context, m metadata.TransformMetadata) error
}

type ServiceOptions struct {
	// Attempts is how many times Update re-reads and retries after a
	// version conflict. Zero means a single try.
	Attempts int
	Backoff  time.Duration

	Publishers []Publisher
	Now        func() time.Time
}

// Service is the execution-engine facing API: it creates metadata for a
// new run and applies state and stats changes with read-modify-write.
type Service struct {
	store Store
	opts  ServiceOptions
	log   *slog.Logger
}

func NewService(st Store, opts ServiceOptions) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Attempts < 0 {
		opts.Attempts = 0
	}
	return &Service{store: st, opts: opts, log: logging.For("metadata-service")}
}

// now is truncated to the millisecond precision of the stored document form.
func (s *Service) now() time.Time { return s.opts.Now().UTC().Truncate(time.Millisecond) }

// Create persists INIT metadata for transformID. Continuous transforms
// start with empty checkpoint and continuous stats sections.
func (s *Service) Create(ctx context.Context, id, transformID string, continuous bool) (metadata.TransformMetadata, error) {
	m := metadata.New(id, transformID, metadata.StatusInit, metadata.TransformStats{}, s.now())
	if continuous {
		m.ShardIDToGlobalCheckpoint = map[metadata.ShardID]int64{}
		m.ContinuousStats = &metadata.ContinuousStats{DocumentsBehind: map[string]int64{}}
	}
	return s.Save(ctx, m)
}

func (s *Service) Load(ctx context.Context, id string) (metadata.TransformMetadata, error) {
	return s.store.Get(ctx, id)
}

// Save writes m, checking the version it carries.
func (s *Service) Save(ctx context.Context, m metadata.TransformMetadata) (metadata.TransformMetadata, error) {
	saved, err := s.store.Index(ctx, m, IndexOptions{})
	if err != nil {
		return saved, err
	}
	s.publish(ctx, saved)
	return saved, nil
}

// Update loads id, applies fn and saves the result, retrying on version
// conflicts up to Attempts times.
func (s *Service) Update(ctx context.Context, id string, fn func(metadata.TransformMetadata) (metadata.TransformMetadata, error)) (metadata.TransformMetadata, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return metadata.TransformMetadata{}, err
		}
		next, err := fn(cur)
		if err != nil {
			return metadata.TransformMetadata{}, err
		}
		next.ID = cur.ID
		next.SeqNo, next.PrimaryTerm = cur.SeqNo, cur.PrimaryTerm

		saved, err := s.store.Index(ctx, next, IndexOptions{})
		if err == nil {
			s.publish(ctx, saved)
			return saved, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= s.opts.Attempts {
			return metadata.TransformMetadata{}, err
		}
		s.log.Debug("version conflict, retrying", "id", id, "attempt", attempt+1, "err", err)
		if err := sleep(ctx, s.opts.Backoff); err != nil {
			return metadata.TransformMetadata{}, err
		}
	}
}

// Transition moves id to status. A non-empty reason is recorded as the
// failure reason.
func (s *Service) Transition(ctx context.Context, id string, status metadata.Status, reason string) (metadata.TransformMetadata, error) {
	if !status.Valid() {
		return metadata.TransformMetadata{}, fmt.Errorf("%w: %d", metadata.ErrUnknownStatus, status)
	}
	return s.Update(ctx, id, func(m metadata.TransformMetadata) (metadata.TransformMetadata, error) {
		out := m.WithStatus(status, s.now())
		if reason != "" {
			out.FailureReason = &reason
		}
		return out, nil
	})
}

// RecordStats adds delta to the stats of id.
func (s *Service) RecordStats(ctx context.Context, id string, delta metadata.TransformStats) (metadata.TransformMetadata, error) {
	return s.Update(ctx, id, func(m metadata.TransformMetadata) (metadata.TransformMetadata, error) {
		return m.MergeStats(delta).WithLastUpdatedAt(s.now()), nil
	})
}

// publish is best effort: the write is already durable.
func (s *Service) publish(ctx context.Context, m metadata.TransformMetadata) {
	for _, p := range s.opts.Publishers {
		if err := p.Push(ctx, m); err != nil {
			s.log.Warn("publish failed", "id", m.ID, "transform_id", m.TransformID, "err", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
