package store

import (
	"context"
	"errors"
	"fmt"

	"transformstate/internal/metadata"
	"transformstate/internal/telemetry"
)

type Config struct {
	Backend     string       `koanf:"backend"` // memory|postgres|redis
	PrimaryTerm int64        `koanf:"primary_term"`
	DSN         string       `koanf:"dsn"`
	Table       string       `koanf:"table"`
	Redis       RedisOptions `koanf:"redis"`
}

// Open builds the configured backend wrapped with metrics.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Backend {
	case "", "memory":
		cfg.Backend = "memory"
		st = NewMemory(cfg.PrimaryTerm)
	case "postgres":
		st, err = OpenPostgres(ctx, cfg.DSN, cfg.Table, cfg.PrimaryTerm)
	case "redis":
		st, err = OpenRedis(ctx, cfg.Redis, cfg.PrimaryTerm)
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(cfg.Backend, st), nil
}

type instrumented struct {
	backend string
	Store
}

// Instrument counts calls and version conflicts of st under backend.
func Instrument(backend string, st Store) Store {
	return instrumented{backend: backend, Store: st}
}

func (s instrumented) Get(ctx context.Context, id string) (metadata.TransformMetadata, error) {
	telemetry.StoreOps.WithLabelValues(s.backend, "get").Inc()
	return s.Store.Get(ctx, id)
}

func (s instrumented) Index(ctx context.Context, m metadata.TransformMetadata, opts IndexOptions) (metadata.TransformMetadata, error) {
	telemetry.StoreOps.WithLabelValues(s.backend, "index").Inc()
	out, err := s.Store.Index(ctx, m, opts)
	if errors.Is(err, ErrVersionConflict) {
		telemetry.StoreConflicts.WithLabelValues(s.backend).Inc()
	}
	return out, err
}
