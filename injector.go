package bundi

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000/internal/reflection"
)

// inquiry is the chain of wrappers currently under construction, innermost
// last.
type inquiry struct {
	w      *InstanceWrapper
	parent *inquiry
}

func (q *inquiry) push(w *InstanceWrapper) *inquiry {
	return &inquiry{w: w, parent: q}
}

func (q *inquiry) contains(w *InstanceWrapper) bool {
	for n := q; n != nil; n = n.parent {
		if n.w == w {
			return true
		}
	}
	return false
}

// names lists the chain from the outermost wrapper, ending with repeat.
func (q *inquiry) names(repeat *InstanceWrapper) []string {
	var rev []string
	for n := q; n != nil; n = n.parent {
		rev = append(rev, n.w.Name)
	}

	names := make([]string, 0, len(rev)+1)
	for i := len(rev) - 1; i >= 0; i-- {
		names = append(names, rev[i])
	}
	return append(names, repeat.Name)
}

// Injector resolves instance wrappers into live instances.
type Injector struct {
	container *Container
	scanner   *scanner
	logger    *zap.Logger
	lifecycle *lifecycleManager

	mu         sync.Mutex
	tracked    map[ContextID][]*InstanceWrapper
	moduleRefs map[*Module]*ModuleRef
	classes    map[classKey]*InstanceWrapper
}

type classKey struct {
	host *Module
	ctor funcTarget
}

func newInjector(c *Container, s *scanner, logger *zap.Logger) *Injector {
	return &Injector{
		container:  c,
		scanner:    s,
		logger:     logger,
		lifecycle:  newLifecycleManager(),
		tracked:    make(map[ContextID][]*InstanceWrapper),
		moduleRefs: make(map[*Module]*ModuleRef),
		classes:    make(map[classKey]*InstanceWrapper),
	}
}

// loadInstance returns the instance of w for context id, constructing it
// and its dependencies as needed.
func (inj *Injector) loadInstance(ctx context.Context, w *InstanceWrapper, id ContextID, chain *inquiry) (any, error) {
	if v, ok := w.cached(id); ok {
		return v, nil
	}

	if chain.contains(w) {
		return nil, &CircularDependencyError{Chain: chain.names(w)}
	}

	if w.scope == Transient {
		return inj.instantiate(ctx, w, id, chain.push(w))
	}

	v, wait, own, ok := w.begin(id)
	if ok {
		return v, nil
	}
	if wait != nil {
		select {
		case <-wait.done:
			return wait.value, wait.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	value, err := inj.instantiate(ctx, w, id, chain.push(w))
	w.finish(id, own, value, err)
	if err != nil {
		return nil, err
	}

	switch w.scope {
	case Request:
		inj.track(id, w)
	case Singleton:
		// values are owned by whoever supplied them
		if w.strategy != ValueStrategy {
			inj.lifecycle.track(value)
		}
	}
	return value, nil
}

func (inj *Injector) instantiate(ctx context.Context, w *InstanceWrapper, id ContextID, chain *inquiry) (any, error) {
	switch w.strategy {
	case ValueStrategy:
		return w.value, nil

	case AliasStrategy:
		return inj.resolveDependency(ctx, w, w.deps[0], "", id, chain)

	default:
		args, err := inj.resolveArgs(ctx, w, id, chain)
		if err != nil {
			return nil, err
		}

		out, p := reflection.Call(w.fn.Value, args)
		if p != nil {
			return nil, &ConstructorPanicError{
				Provider:    w.Name,
				Constructor: w.fn.Type,
				Panic:       p.Value,
				Stack:       p.Stack,
			}
		}

		instance, err := w.fn.Results(out)
		if err != nil {
			return nil, &ConstructorInvocationError{Provider: w.Name, Constructor: w.fn.Type, Cause: err}
		}

		if w.strategy == ClassStrategy {
			if err := inj.injectProperties(ctx, w, instance, id, chain); err != nil {
				return nil, err
			}
		}
		return instance, nil
	}
}

func (inj *Injector) resolveArgs(ctx context.Context, w *InstanceWrapper, id ContextID, chain *inquiry) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(w.deps))
	for i, d := range w.deps {
		arg, err := inj.resolveArg(ctx, w, d, "", id, chain)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return args, nil
}

// resolveArg resolves d into a value of the declared type.
func (inj *Injector) resolveArg(ctx context.Context, w *InstanceWrapper, d Dependency, property string, id ContextID, chain *inquiry) (reflect.Value, error) {
	if d.Forward {
		if _, ok := refTarget(d.Type); ok {
			h := &lazyHandle{
				injector: inj,
				module:   w.host,
				token:    d.Token,
				optional: d.Optional,
				id:       id,
				ctx:      context.WithoutCancel(ctx),
			}
			ref, ok := newRef(d.Type, h)
			if !ok {
				return reflect.Value{}, &ForwardRefError{Token: d.Token, Reason: "cannot build reference of type " + d.Type.String()}
			}
			return ref, nil
		}
	}

	v, err := inj.resolveDependency(ctx, w, d, property, id, chain)
	if err != nil {
		return reflect.Value{}, err
	}

	arg, ok := reflection.Arg(v, d.Type)
	if !ok {
		where := "argument of " + w.Name
		if property != "" {
			where = "property " + property + " of " + w.Name
		}
		return reflect.Value{}, &TypeMismatchError{Expected: d.Type, Actual: reflect.TypeOf(v), Context: where}
	}
	return arg, nil
}

// resolveDependency resolves d to its instance, looked up from the module
// hosting w.
func (inj *Injector) resolveDependency(ctx context.Context, w *InstanceWrapper, d Dependency, property string, id ContextID, chain *inquiry) (any, error) {
	switch d.kind {
	case depContext:
		return ctx, nil
	case depModuleRef:
		return inj.moduleRef(w.host), nil
	case depRequest:
		if c := RequestFromContext(ctx); c != nil {
			return c, nil
		}
		return nil, nil
	}

	token := d.Token
	if ref, ok := token.(ForwardReference); ok {
		token = ref.Unwrap()
	}

	target, ok := inj.lookup(w.host, token)
	if !ok {
		if d.Optional {
			return nil, nil
		}
		return nil, &UnknownDependencyError{
			Token:     token,
			Dependent: w.Name,
			Index:     d.Index,
			Property:  property,
			Module:    w.host.name,
		}
	}

	return inj.loadInstance(ctx, target, id, chain)
}

func (inj *Injector) lookup(host *Module, token Token) (*InstanceWrapper, bool) {
	if validateToken(token) != nil {
		return nil, false
	}
	return host.lookup(token, inj.container.Globals())
}

func (inj *Injector) injectProperties(ctx context.Context, w *InstanceWrapper, instance any, id ContextID, chain *inquiry) error {
	for _, p := range w.props {
		if isUnsafeKey(p.Key) {
			return &UnsafeInjectionError{Provider: w.Name, Key: p.Key}
		}

		arg, err := inj.resolveArg(ctx, w, p.Dependency, p.Key, id, chain)
		if err != nil {
			return err
		}
		if p.Optional && !p.Forward && arg.IsZero() {
			continue
		}

		if !reflection.SetField(instance, p.field, arg.Interface()) {
			return &TypeMismatchError{
				Expected: p.Type,
				Actual:   arg.Type(),
				Context:  "property " + p.Key + " of " + w.Name,
			}
		}
	}
	return nil
}

// resolveForward resolves the target of a lazy handle.
func (inj *Injector) resolveForward(h *lazyHandle) (any, error) {
	token := h.token
	if ref, ok := token.(ForwardReference); ok {
		token = ref.Unwrap()
	}

	target, ok := inj.lookup(h.module, token)
	if !ok {
		if h.optional {
			return nil, nil
		}
		return nil, &ForwardRefError{Token: token, Reason: "provider not resolvable from module " + h.module.name}
	}

	if target.scope != Transient && target.isInflight(h.id) {
		return nil, &ForwardRefError{Token: token, Reason: "provider is still being constructed"}
	}

	return inj.loadInstance(h.ctx, target, h.id, nil)
}

// moduleRef returns the ModuleRef bound to m.
func (inj *Injector) moduleRef(m *Module) *ModuleRef {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	ref, ok := inj.moduleRefs[m]
	if !ok {
		ref = &ModuleRef{module: m, injector: inj}
		inj.moduleRefs[m] = ref
	}
	return ref
}

// instantiateClass produces an instance for a constructor used as an
// enhancer or middleware class. A registered provider of the constructor's
// result type is reused; otherwise the constructor is instantiated as a
// Transient wrapper hosted by host.
func (inj *Injector) instantiateClass(ctx context.Context, host *Module, ctor any, id ContextID) (any, error) {
	w, err := inj.classWrapper(host, ctor)
	if err != nil {
		return nil, err
	}
	return inj.loadInstance(ctx, w, id, nil)
}

func (inj *Injector) classWrapper(host *Module, ctor any) (*InstanceWrapper, error) {
	target, ok := normalizeTarget(ctor)
	if !ok {
		return nil, &InvalidProviderError{Module: host.name, Reason: ErrConstructorNil.Error()}
	}
	key := classKey{host: host, ctor: target.(funcTarget)}

	inj.mu.Lock()
	w, ok := inj.classes[key]
	inj.mu.Unlock()
	if ok {
		return w, nil
	}

	info, err := inj.scanner.analyzer.Analyze(ctor)
	if err != nil {
		return nil, &InvalidProviderError{Module: host.name, Provider: formatType(reflect.TypeOf(ctor)), Reason: err.Error()}
	}
	if info.Result != nil {
		if registered, ok := inj.lookup(host, info.Result); ok {
			w = registered
		} else if registered, ok := inj.container.find(info.Result); ok {
			w = registered
		}
	}

	if w == nil {
		w, err = inj.scanner.classWrapper(host, nil, ctor, Transient)
		if err != nil {
			return nil, err
		}
	}

	inj.mu.Lock()
	inj.classes[key] = w
	inj.mu.Unlock()
	return w, nil
}

// track records a request-scoped wrapper holding an instance for id.
func (inj *Injector) track(id ContextID, w *InstanceWrapper) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.tracked[id] = append(inj.tracked[id], w)
}

// untrack removes id from the tracked set and returns its wrappers.
func (inj *Injector) untrack(id ContextID) []*InstanceWrapper {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	wrappers := inj.tracked[id]
	delete(inj.tracked, id)
	return wrappers
}

// release drops the request-scoped instances cached for id without
// disposing them. Used for context ids minted for a single resolution,
// whose caller now owns the instances.
func (inj *Injector) release(id ContextID) {
	for _, w := range inj.untrack(id) {
		w.Evict(id)
	}
}

// evict drops every request-scoped instance cached for id and disposes the
// evicted instances.
func (inj *Injector) evict(ctx context.Context, id ContextID) {
	wrappers := inj.untrack(id)
	for i := len(wrappers) - 1; i >= 0; i-- {
		w := wrappers[i]
		instance, ok := w.Evict(id)
		if !ok {
			continue
		}
		if err := dispose(ctx, instance); err != nil {
			inj.logger.Warn("failed to dispose request-scoped instance",
				zap.String("provider", w.Name),
				zap.String("contextId", string(id)),
				zap.Error(err))
		}
	}
}

// evictAll evicts every tracked context id.
func (inj *Injector) evictAll(ctx context.Context) {
	inj.mu.Lock()
	ids := make([]ContextID, 0, len(inj.tracked))
	for id := range inj.tracked {
		ids = append(ids, id)
	}
	inj.mu.Unlock()

	for _, id := range ids {
		inj.evict(ctx, id)
	}
	for _, w := range inj.container.wrappers() {
		w.EvictAll()
	}
}

// trackedContexts returns the number of context ids holding instances.
func (inj *Injector) trackedContexts() int {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return len(inj.tracked)
}
