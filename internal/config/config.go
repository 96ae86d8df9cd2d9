// Package config loads the engine configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"transformstate/internal/logging"
	"transformstate/internal/store"
	sinkkafka "transformstate/sink/kafka"
	"transformstate/sink/stdout"
	"transformstate/source/kafka"
)

const (
	SupportedSchema = "v1"

	// EnvPrefix is stripped from overrides, and "__" nests keys:
	// TRANSFORMSTATE__STORE__BACKEND=redis.
	EnvPrefix = "TRANSFORMSTATE__"
)

type UpdateConfig struct {
	Attempts int           `koanf:"attempts"`
	Backoff  time.Duration `koanf:"backoff"`
}

// PublishConfig lists the sinks every successful write is pushed to.
type PublishConfig struct {
	Sinks  []string         `koanf:"sinks"`
	Kafka  sinkkafka.Config `koanf:"kafka"`
	Stdout stdout.Config    `koanf:"stdout"`
}

// ReplicationConfig drives the feed that mirrors another node's writes
// into the local store. Source is the kafka source config file, resolved
// relative to the engine config.
type ReplicationConfig struct {
	Enabled bool          `koanf:"enabled"`
	Driver  string        `koanf:"driver"`
	Source  string        `koanf:"source"`
	Sinks   []string      `koanf:"sinks"` // extra sinks besides the store
	Stdout  stdout.Config `koanf:"stdout"`
}

type Config struct {
	SchemaVersion string            `koanf:"schema_version"`
	GRPCPort      int               `koanf:"grpc_port"`
	MetricsPort   int               `koanf:"metrics_port"`
	Log           logging.Options   `koanf:"log"`
	Store         store.Config      `koanf:"store"`
	Update        UpdateConfig      `koanf:"update"`
	Publish       PublishConfig     `koanf:"publish"`
	Replication   ReplicationConfig `koanf:"replication"`
}

// Load merges the YAML file at path (optional) with env overrides and
// fills defaults.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("config schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	applyDefaults(&cfg)
	if src := cfg.Replication.Source; src != "" && path != "" && !filepath.IsAbs(src) {
		cfg.Replication.Source = filepath.Join(filepath.Dir(path), src)
	}
	return cfg, nil
}

// SourceConfig loads the kafka source settings for replication.
func (c Config) SourceConfig() (kafka.Config, error) {
	return kafka.LoadConfig(c.Replication.Source)
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func applyDefaults(c *Config) {
	if c.GRPCPort == 0 {
		c.GRPCPort = 7070
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = 9100
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.PrimaryTerm <= 0 {
		c.Store.PrimaryTerm = 1
	}
	if c.Update.Attempts == 0 {
		c.Update.Attempts = 3
	}
	if c.Update.Backoff == 0 {
		c.Update.Backoff = 50 * time.Millisecond
	}
	if c.Replication.Driver == "" {
		c.Replication.Driver = "sarama"
	}
}
