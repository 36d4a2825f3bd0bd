package bundi

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// OnModuleInit is called once the host module's providers are resolved,
// before routes are registered.
type OnModuleInit interface {
	OnModuleInit(ctx context.Context) error
}

// OnApplicationBootstrap is called after every module has been initialized.
type OnApplicationBootstrap interface {
	OnApplicationBootstrap(ctx context.Context) error
}

// OnModuleDestroy is called first when the application closes.
type OnModuleDestroy interface {
	OnModuleDestroy(ctx context.Context) error
}

// BeforeApplicationShutdown is called after OnModuleDestroy, before the HTTP
// server stops accepting connections. signal is empty when Close was called
// directly.
type BeforeApplicationShutdown interface {
	BeforeApplicationShutdown(ctx context.Context, signal string) error
}

// OnApplicationShutdown is called once the HTTP server has stopped.
type OnApplicationShutdown interface {
	OnApplicationShutdown(ctx context.Context, signal string) error
}

// Disposable is implemented by instances holding resources. Close is called
// after OnApplicationShutdown for singletons the container created, and when
// a request finishes for request-scoped instances. Value providers are never
// closed.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	Close() error
}

// DisposableWithContext is Disposable with a context for graceful shutdown.
type DisposableWithContext interface {
	Close(ctx context.Context) error
}

func dispose(ctx context.Context, instance any) error {
	switch d := instance.(type) {
	case DisposableWithContext:
		return d.Close(ctx)
	case Disposable:
		return d.Close()
	}
	return nil
}

// lifecycleManager tracks singleton instances in creation order so they are
// disposed in reverse.
type lifecycleManager struct {
	mu        sync.Mutex
	instances []any
}

func newLifecycleManager() *lifecycleManager {
	return &lifecycleManager{}
}

// track adds a disposable instance to be managed.
func (m *lifecycleManager) track(instance any) {
	switch instance.(type) {
	case Disposable, DisposableWithContext:
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if containsInstance(m.instances, instance) {
		return
	}
	m.instances = append(m.instances, instance)
}

// containsInstance reports whether list holds instance, compared by
// identity. Values of non-comparable types never match.
func containsInstance(list []any, instance any) bool {
	t := reflect.TypeOf(instance)
	if t == nil || !t.Comparable() {
		return false
	}
	for _, existing := range list {
		if reflect.TypeOf(existing) == t && existing == instance {
			return true
		}
	}
	return false
}

// dispose disposes all tracked instances in reverse order.
func (m *lifecycleManager) dispose(ctx context.Context) error {
	m.mu.Lock()
	instances := m.instances
	m.instances = nil
	m.mu.Unlock()

	var errs []error
	for i := len(instances) - 1; i >= 0; i-- {
		if err := dispose(ctx, instances[i]); err != nil {
			errs = append(errs, fmt.Errorf("disposal of %T: %w", instances[i], err))
		}
	}
	return errors.Join(errs...)
}

// hookInstances returns the resolved singleton instances of m that take part
// in lifecycle hooks: providers and controllers first, the module class
// instance last.
func hookInstances(m *Module) []any {
	var instances []any
	var moduleInstance any
	seen := make(map[*InstanceWrapper]bool)

	add := func(w *InstanceWrapper) {
		if seen[w] {
			return
		}
		seen[w] = true

		v, ok := w.Instance()
		if !ok || v == nil {
			return
		}
		if w.isModule {
			moduleInstance = v
			return
		}
		if !containsInstance(instances, v) {
			instances = append(instances, v)
		}
	}

	for _, w := range m.Providers() {
		add(w)
	}
	for _, w := range m.Controllers() {
		add(w)
	}

	if moduleInstance != nil {
		instances = append(instances, moduleInstance)
	}
	return instances
}

// callHook runs call on every hook instance of every module, deepest module
// first.
func callHook(modules []*Module, hook string, call func(instance any) (bool, error)) error {
	for _, m := range modules {
		for _, instance := range hookInstances(m) {
			implemented, err := call(instance)
			if !implemented {
				continue
			}
			if err != nil {
				return &LifecycleHookError{Hook: hook, Instance: fmt.Sprintf("%T", instance), Cause: err}
			}
		}
	}
	return nil
}

// callHookAll is callHook continuing past failures, for shutdown hooks.
func callHookAll(modules []*Module, hook string, call func(instance any) (bool, error)) error {
	var errs []error
	for _, m := range modules {
		for _, instance := range hookInstances(m) {
			implemented, err := call(instance)
			if implemented && err != nil {
				errs = append(errs, &LifecycleHookError{Hook: hook, Instance: fmt.Sprintf("%T", instance), Cause: err})
			}
		}
	}
	return errors.Join(errs...)
}
