package engine

import (
	"context"
	"errors"
	"fmt"

	"transformstate/internal/config"
	"transformstate/internal/logging"
	"transformstate/internal/pipeline"
	"transformstate/internal/store"
	"transformstate/internal/telemetry"
	"transformstate/internal/transport"
	"transformstate/sink"
	"transformstate/sink/statestore"
	"transformstate/source/kafka"

	// sink drivers register themselves
	_ "transformstate/sink/kafka"
	_ "transformstate/sink/stdout"
)

// Bootstrap wires the store, service, replication feed, gRPC server and
// metrics. On failure everything opened so far is closed again.
func Bootstrap(ctx context.Context, cfg config.Config) (*Engine, error) {
	e := &Engine{}
	if err := e.bootstrap(ctx, cfg); err != nil {
		return nil, errors.Join(err, e.close())
	}
	logging.For("engine").Info("bootstrapped",
		"store", cfg.Store.Backend, "grpc_port", cfg.GRPCPort,
		"publishers", cfg.Publish.Sinks, "replication", cfg.Replication.Enabled)
	return e, nil
}

func (e *Engine) bootstrap(ctx context.Context, cfg config.Config) (err error) {
	// 1. store and service
	if e.store, err = store.Open(ctx, cfg.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if e.publishers, err = publishers(cfg.Publish); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	opts := store.ServiceOptions{Attempts: cfg.Update.Attempts, Backoff: cfg.Update.Backoff}
	for _, p := range e.publishers {
		opts.Publishers = append(opts.Publishers, p)
	}
	e.service = store.NewService(e.store, opts)

	// 2. replication runner
	if cfg.Replication.Enabled {
		if e.runner, err = replication(cfg, e.store); err != nil {
			return fmt.Errorf("replication: %w", err)
		}
		if err = e.runner.Start(ctx); err != nil {
			return err
		}
	}

	// 3. transport server
	if e.transport, err = transport.StartServer(cfg.GRPCPort, transport.NewMetadataServer(e.service)); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	// 4. metrics
	telemetry.Expose(cfg.MetricsPort)
	return nil
}

func publishers(cfg config.PublishConfig) ([]sink.Adapter, error) {
	var out []sink.Adapter
	for _, name := range cfg.Sinks {
		a, err := sink.NewAdapter(name)
		if err != nil {
			return out, err
		}
		switch name {
		case "kafka":
			err = a.Configure(cfg.Kafka)
		case "stdout":
			err = a.Configure(cfg.Stdout)
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return out, err
		}
		out = append(out, a)
	}
	return out, nil
}

func replication(cfg config.Config, st store.Store) (*pipeline.Runner, error) {
	kc, err := cfg.SourceConfig()
	if err != nil {
		return nil, err
	}
	src, err := kafka.NewAdapter(cfg.Replication.Driver)
	if err != nil {
		return nil, err
	}
	if err := src.Configure(kc); err != nil {
		return nil, errors.Join(err, src.Close())
	}

	r := pipeline.NewRunner()
	r.SetSource(src)
	r.AddSink(statestore.New(st))
	for _, name := range cfg.Replication.Sinks {
		a, err := sink.NewAdapter(name)
		if err != nil {
			return nil, errors.Join(err, r.Close())
		}
		switch name {
		case "stdout":
			err = a.Configure(cfg.Replication.Stdout)
		default:
			err = fmt.Errorf("sink %q cannot receive replicated records", name)
		}
		if err != nil {
			return nil, errors.Join(err, r.Close())
		}
		r.AddSink(a)
	}
	return r, nil
}
