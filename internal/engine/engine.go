package engine

import (
	"context"
	"errors"

	"transformstate/internal/pipeline"
	"transformstate/internal/store"
	"transformstate/internal/transport"
	"transformstate/sink"
)

type Engine struct {
	store      store.Store
	service    *store.Service
	publishers []sink.Adapter
	transport  *transport.Server
	runner     *pipeline.Runner
}

// Service is the metadata API the execution engine embeds.
func (e *Engine) Service() *store.Service { return e.service }

func (e *Engine) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		e.transport.Stop()
	}()

	err := e.transport.Serve()
	return errors.Join(err, e.close())
}

func (e *Engine) close() error {
	var errs []error
	if e.runner != nil {
		errs = append(errs, e.runner.Close())
	}
	for _, p := range e.publishers {
		errs = append(errs, p.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
