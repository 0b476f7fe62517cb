package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// Component is a long-running part of the service, such as the HTTP server,
// the audit worker or the reputation sweeper.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runtime starts components in registration order and stops them in reverse,
// so consumers go down before the infrastructure they depend on.
type Runtime struct {
	components []Component
}

func NewRuntime(components ...Component) *Runtime {
	return &Runtime{components: components}
}

// Register appends a component. Nil components are ignored, which lets
// callers register optional pieces unconditionally.
func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, component)
}

// Start brings every component up. On the first failure the components that
// already started are stopped again before the error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	started := make([]Component, 0, len(r.components))
	for _, component := range r.components {
		if component == nil {
			continue
		}
		if err := component.Start(ctx); err != nil {
			_ = stopAll(ctx, started)
			return fmt.Errorf("start component: %w", err)
		}
		started = append(started, component)
	}
	return nil
}

// Stop shuts down all components in reverse order. Every component gets its
// Stop call even when earlier ones fail; the errors are joined.
func (r *Runtime) Stop(ctx context.Context) error {
	return stopAll(ctx, r.components)
}

func stopAll(ctx context.Context, components []Component) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		if component == nil {
			continue
		}
		if err := component.Stop(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("stop component: %w", err))
		}
	}
	return stopErr
}
