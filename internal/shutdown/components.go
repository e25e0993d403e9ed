package shutdown

import (
	"context"
	"io"
)

// Stopper is a worker pool that drains in-flight work when stopped, such as
// the notification dispatcher.
type Stopper interface {
	Stop()
}

// WorkerComponent wraps a Stopper.
type WorkerComponent struct {
	name   string
	worker Stopper
}

// NewWorkerComponent creates a new worker shutdown component.
func NewWorkerComponent(name string, worker Stopper) *WorkerComponent {
	return &WorkerComponent{name: name, worker: worker}
}

func (c *WorkerComponent) Name() string { return c.name }

// Shutdown stops the worker. Stop blocks until in-flight events finish.
func (c *WorkerComponent) Shutdown(ctx context.Context) error {
	c.worker.Stop()
	return nil
}

// CloserComponent wraps an io.Closer such as a store or Redis client.
type CloserComponent struct {
	name   string
	closer io.Closer
}

// NewCloserComponent creates a new closer shutdown component.
func NewCloserComponent(name string, closer io.Closer) *CloserComponent {
	return &CloserComponent{name: name, closer: closer}
}

func (c *CloserComponent) Name() string { return c.name }

func (c *CloserComponent) Shutdown(ctx context.Context) error {
	return c.closer.Close()
}

// FuncComponent wraps a shutdown function.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a new function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{name: name, fn: fn}
}

func (c *FuncComponent) Name() string { return c.name }

func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}
