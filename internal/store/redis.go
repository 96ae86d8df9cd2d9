package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"transformstate/internal/metadata"
)

const (
	fieldSeqNo       = "seq_no"
	fieldPrimaryTerm = "primary_term"
	fieldDoc         = "doc"
)

// Redis keeps each document in a hash and uses WATCH/MULTI for the version
// check, so a concurrent writer between read and write aborts the
// transaction.
type Redis struct {
	client      redis.UniversalClient
	prefix      string
	primaryTerm int64
}

type RedisOptions struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

func OpenRedis(ctx context.Context, opts RedisOptions, primaryTerm int64) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return NewRedis(client, opts.KeyPrefix, primaryTerm), nil
}

func NewRedis(client redis.UniversalClient, prefix string, primaryTerm int64) *Redis {
	if prefix == "" {
		prefix = "transform_metadata:"
	}
	if primaryTerm <= 0 {
		primaryTerm = 1
	}
	return &Redis{client: client, prefix: prefix, primaryTerm: primaryTerm}
}

func (s *Redis) key(id string) string { return s.prefix + id }

func (s *Redis) Get(ctx context.Context, id string) (metadata.TransformMetadata, error) {
	vals, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return metadata.TransformMetadata{}, fmt.Errorf("redis: get [%s]: %w", id, err)
	}
	if len(vals) == 0 {
		return metadata.TransformMetadata{}, ErrNotFound
	}
	v, err := parseVersion(vals[fieldSeqNo], vals[fieldPrimaryTerm])
	if err != nil {
		return metadata.TransformMetadata{}, fmt.Errorf("redis: get [%s]: %w", id, err)
	}
	return decodeStored(id, v, []byte(vals[fieldDoc]))
}

func (s *Redis) Index(ctx context.Context, m metadata.TransformMetadata, opts IndexOptions) (metadata.TransformMetadata, error) {
	m = assignID(m)
	doc, err := storageCodec.Encode(m)
	if err != nil {
		return metadata.TransformMetadata{}, err
	}
	key := s.key(m.ID)

	var next stored
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, key, fieldSeqNo, fieldPrimaryTerm).Result()
		if err != nil {
			return err
		}
		var cur *stored
		if seq, ok := vals[0].(string); ok {
			pt, _ := vals[1].(string)
			v, err := parseVersion(seq, pt)
			if err != nil {
				return err
			}
			cur = &v
		}
		if next, err = nextVersion(m, cur, s.primaryTerm, opts); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldSeqNo, next.seqNo, fieldPrimaryTerm, next.primaryTerm, fieldDoc, doc)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return metadata.TransformMetadata{}, fmt.Errorf("%w: [%s] modified concurrently", ErrVersionConflict, m.ID)
	}
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return metadata.TransformMetadata{}, err
		}
		return metadata.TransformMetadata{}, fmt.Errorf("redis: index [%s]: %w", m.ID, err)
	}
	return decodeStored(m.ID, next, doc)
}

func (s *Redis) Close() error { return s.client.Close() }

func parseVersion(seq, pt string) (stored, error) {
	var v stored
	var err error
	if v.seqNo, err = strconv.ParseInt(seq, 10, 64); err != nil {
		return v, fmt.Errorf("bad %s %q: %w", fieldSeqNo, seq, err)
	}
	if v.primaryTerm, err = strconv.ParseInt(pt, 10, 64); err != nil {
		return v, fmt.Errorf("bad %s %q: %w", fieldPrimaryTerm, pt, err)
	}
	return v, nil
}
