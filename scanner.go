package bundi

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000/internal/reflection"
)

var (
	// RequestToken is the token of the current request *Context. Depending
	// on it makes the dependent Request-scoped.
	RequestToken = TypeOf[*Context]()

	// ModuleRefToken is the token of the *ModuleRef bound to the module
	// hosting the dependent.
	ModuleRefToken = TypeOf[*ModuleRef]()

	contextToken = TypeOf[context.Context]()
)

// unsafeKeys are property keys that are never valid injection targets.
var unsafeKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

func isUnsafeKey(key string) bool {
	_, ok := unsafeKeys[key]
	return ok
}

// scanner builds the module graph from a root module definition.
type scanner struct {
	container *Container
	metadata  *MetadataRegistry
	analyzer  *reflection.Analyzer
	logger    *zap.Logger
}

func newScanner(c *Container, metadata *MetadataRegistry, logger *zap.Logger) *scanner {
	return &scanner{
		container: c,
		metadata:  metadata,
		analyzer:  reflection.New(),
		logger:    logger,
	}
}

// scanCore registers the internal global module exporting values.
func (s *scanner) scanCore(values map[Token]any) *Module {
	def := NewModule("InternalCoreModule", Global())
	meta, _ := resolveModuleMetadata(def)
	m := newModule(meta)
	for token, value := range values {
		m.addProvider(&InstanceWrapper{
			Token:    token,
			Name:     tokenName(token),
			strategy: ValueStrategy,
			scope:    Singleton,
			host:     m,
			value:    value,
		})
		m.addExport(token)
	}
	s.container.addModule(m)
	s.container.core = m
	return m
}

// scan walks root and every module it transitively imports.
func (s *scanner) scan(root any) (*Module, error) {
	m, err := s.scanModule(root)
	if err != nil {
		return nil, err
	}

	s.container.mu.Lock()
	s.container.root = m
	s.container.mu.Unlock()

	s.container.computeDistances()
	return m, nil
}

func (s *scanner) scanModule(target any) (*Module, error) {
	meta, err := resolveModuleMetadata(target)
	if err != nil {
		return nil, err
	}

	if existing, ok := s.container.Module(meta.key); ok {
		return existing, nil
	}

	m := newModule(meta)
	s.container.addModule(m)
	s.logger.Debug("scanning module", zap.String("module", m.name))

	if err := s.addModuleClass(m); err != nil {
		return nil, &ModuleError{Module: m.name, Cause: err}
	}

	for i, imp := range meta.imports {
		child, err := s.scanModule(imp)
		if err != nil {
			if _, ok := err.(*ModuleError); ok {
				return nil, err
			}
			return nil, &ModuleError{Module: m.name, Cause: fmt.Errorf("import at index [%d]: %w", i, err)}
		}
		s.container.addImport(m, child)
	}

	for _, p := range meta.providers {
		w, err := s.buildProvider(m, p)
		if err != nil {
			return nil, &ModuleError{Module: m.name, Cause: err}
		}
		m.addProvider(w)
	}

	for _, def := range meta.controllers {
		w, err := s.buildController(m, def)
		if err != nil {
			return nil, &ModuleError{Module: m.name, Cause: err}
		}
		m.addController(w, def)
	}

	for _, token := range meta.exports {
		if err := s.addExport(m, token); err != nil {
			return nil, &ModuleError{Module: m.name, Cause: err}
		}
	}

	return m, nil
}

// override replaces the provider registered under p.Provide in every module
// declaring it.
func (s *scanner) override(p Provider) error {
	found := false
	for _, m := range s.container.Modules() {
		if _, ok := m.Provider(p.Provide); !ok {
			continue
		}
		w, err := s.buildDescriptor(m, p)
		if err != nil {
			return &ModuleError{Module: m.name, Cause: err}
		}
		m.addProvider(w)
		found = true
		s.logger.Debug("provider overridden", zap.String("provider", w.Name), zap.String("module", m.name))
	}
	if !found {
		return &UnknownElementError{Token: p.Provide}
	}
	return nil
}

// addModuleClass registers the module itself as a singleton provider.
func (s *scanner) addModuleClass(m *Module) error {
	if m.def.class == nil {
		m.addProvider(&InstanceWrapper{
			Token:    m.key,
			Name:     m.name,
			strategy: ValueStrategy,
			scope:    Singleton,
			host:     m,
			value:    m.def,
			isModule: true,
		})
		return nil
	}

	w, err := s.classWrapper(m, nil, m.def.class, Singleton)
	if err != nil {
		return err
	}
	w.isModule = true
	m.addProvider(w)
	return nil
}

func (s *scanner) addExport(m *Module, token Token) error {
	if ref, ok := token.(ForwardReference); ok {
		token = ref.Unwrap()
	}

	switch token.(type) {
	case *ModuleDef, *DynamicModule:
		meta, err := resolveModuleMetadata(token)
		if err != nil {
			return err
		}
		imported, ok := s.container.Module(meta.key)
		if !ok {
			return &InvalidProviderError{Module: m.name, Provider: meta.def.name, Reason: "exported module is not imported"}
		}
		m.addReexport(imported)
		return nil
	}

	if err := validateToken(token); err != nil {
		return &InvalidProviderError{Module: m.name, Reason: fmt.Sprintf("invalid export: %v", err)}
	}
	m.addExport(token)
	return nil
}

// buildProvider turns a provider declaration into a wrapper.
func (s *scanner) buildProvider(m *Module, spec any) (*InstanceWrapper, error) {
	switch p := spec.(type) {
	case nil:
		return nil, &InvalidProviderError{Module: m.name, Reason: "provider cannot be nil"}
	case Provider:
		return s.buildDescriptor(m, p)
	case *Provider:
		if p == nil {
			return nil, &InvalidProviderError{Module: m.name, Reason: "provider cannot be nil"}
		}
		return s.buildDescriptor(m, *p)
	case *ModuleDef, *DynamicModule:
		return nil, &InvalidProviderError{Module: m.name, Provider: tokenName(p), Reason: "modules belong in Imports, not Providers"}
	}

	if reflect.TypeOf(spec).Kind() == reflect.Func {
		return s.classWrapper(m, nil, spec, DefaultScope)
	}

	return nil, &InvalidProviderError{
		Module:   m.name,
		Provider: fmt.Sprintf("%T", spec),
		Reason:   "provider must be a constructor function or a Provider",
	}
}

func (s *scanner) buildDescriptor(m *Module, p Provider) (*InstanceWrapper, error) {
	strategy, err := p.shape()
	if err != nil {
		return nil, &InvalidProviderError{Module: m.name, Provider: tokenName(p.Provide), Reason: err.Error()}
	}

	if strategy != ClassStrategy {
		if err := validateToken(p.Provide); err != nil {
			return nil, &InvalidProviderError{Module: m.name, Reason: fmt.Sprintf("provide: %v", err)}
		}
	}
	if !p.Scope.IsValid() {
		return nil, &ScopeError{Value: p.Scope}
	}

	switch strategy {
	case ClassStrategy:
		return s.classWrapper(m, p.Provide, p.UseClass, p.Scope)

	case ValueStrategy:
		return &InstanceWrapper{
			Token:    p.Provide,
			Name:     tokenName(p.Provide),
			strategy: ValueStrategy,
			scope:    Singleton,
			host:     m,
			value:    p.UseValue,
		}, nil

	case FactoryStrategy:
		return s.factoryWrapper(m, p)

	default:
		existing := p.UseExisting
		if err := validateToken(existing); err != nil {
			return nil, &InvalidProviderError{Module: m.name, Provider: tokenName(p.Provide), Reason: fmt.Sprintf("useExisting: %v", err)}
		}
		dep := s.dependency(0, nil, existing, true, false)
		return &InstanceWrapper{
			Token:    p.Provide,
			Name:     tokenName(p.Provide),
			strategy: AliasStrategy,
			scope:    p.Scope.orDefault(Singleton),
			host:     m,
			existing: existing,
			deps:     []Dependency{dep},
		}, nil
	}
}

func (s *scanner) buildController(m *Module, def *ControllerDef) (*InstanceWrapper, error) {
	if def == nil {
		return nil, &InvalidProviderError{Module: m.name, Reason: "controller cannot be nil"}
	}

	w, err := s.classWrapper(m, nil, def.ctor, def.scope)
	if err != nil {
		return nil, err
	}
	w.isController = true

	resultType := w.fn.Result
	for _, route := range def.routes {
		if _, ok := resultType.MethodByName(route.Handler); !ok {
			return nil, &InvalidProviderError{
				Module:   m.name,
				Provider: w.Name,
				Reason:   fmt.Sprintf("route %s %s: handler method %q not found", route.Method, route.Path, route.Handler),
			}
		}
		target := MethodTarget{Class: def, Method: route.Handler}
		for _, md := range route.metadata {
			s.metadata.Define(target, md.key, md.value)
		}
	}
	for _, md := range def.metadata {
		s.metadata.Define(def, md.key, md.value)
	}

	return w, nil
}

// meta reads constructor metadata, falling back to the process-wide
// registry when the application uses its own.
func (s *scanner) meta(ctor any, key string) (any, bool) {
	if v, ok := s.metadata.Get(ctor, key); ok {
		return v, true
	}
	if s.metadata != defaultMetadata {
		return defaultMetadata.Get(ctor, key)
	}
	return nil, false
}

// classWrapper builds a class-strategy wrapper for ctor. A nil token uses the
// constructor's result type.
func (s *scanner) classWrapper(m *Module, token Token, ctor any, scope Scope) (*InstanceWrapper, error) {
	if ctor == nil {
		return nil, &InvalidProviderError{Module: m.name, Reason: ErrConstructorNil.Error()}
	}

	info, err := s.analyzer.Analyze(ctor)
	if err != nil {
		return nil, &InvalidProviderError{Module: m.name, Provider: fmt.Sprintf("%T", ctor), Reason: err.Error()}
	}
	if info.Result == nil {
		return nil, &InvalidProviderError{Module: m.name, Provider: formatType(info.Type), Reason: "constructor must return a value"}
	}

	if token == nil {
		token = info.Result
	}

	if scope == DefaultScope {
		if v, ok := s.meta(ctor, MetadataScope); ok {
			scope, _ = v.(Scope)
		}
	}

	w := &InstanceWrapper{
		Token:    token,
		Name:     formatType(info.Result),
		strategy: ClassStrategy,
		scope:    scope.orDefault(Singleton),
		host:     m,
		fn:       info,
	}

	overrides, _ := s.metaInjectTokens(ctor)
	optional, _ := s.metaOptional(ctor)
	for _, p := range info.Params {
		override, has := overrides[p.Index]
		w.deps = append(w.deps, s.dependency(p.Index, p.Type, override, has, optional[p.Index]))
	}

	props, err := s.properties(m, w, ctor, info.Result)
	if err != nil {
		return nil, err
	}
	w.props = props

	if err := validateDependencies(m, w); err != nil {
		return nil, err
	}
	if w.scope == Singleton && w.dependsOnRequest() {
		w.scope = Request
	}

	return w, nil
}

func (s *scanner) factoryWrapper(m *Module, p Provider) (*InstanceWrapper, error) {
	info, err := s.analyzer.Analyze(p.UseFactory)
	if err != nil {
		return nil, &InvalidProviderError{Module: m.name, Provider: tokenName(p.Provide), Reason: err.Error()}
	}
	if info.Result == nil {
		return nil, &InvalidProviderError{Module: m.name, Provider: tokenName(p.Provide), Reason: "factory must return a value"}
	}
	if len(p.Inject) > 0 && len(p.Inject) != len(info.Params) {
		return nil, &InvalidProviderError{
			Module:   m.name,
			Provider: tokenName(p.Provide),
			Reason:   fmt.Sprintf("factory takes %d parameter(s) but %d inject token(s) were given", len(info.Params), len(p.Inject)),
		}
	}

	w := &InstanceWrapper{
		Token:    p.Provide,
		Name:     tokenName(p.Provide),
		strategy: FactoryStrategy,
		scope:    p.Scope.orDefault(Singleton),
		host:     m,
		fn:       info,
	}

	for _, param := range info.Params {
		var override Token
		has := len(p.Inject) > 0
		if has {
			override = p.Inject[param.Index]
		}
		w.deps = append(w.deps, s.dependency(param.Index, param.Type, override, has, false))
	}

	if err := validateDependencies(m, w); err != nil {
		return nil, err
	}
	if w.scope == Singleton && w.dependsOnRequest() {
		w.scope = Request
	}

	return w, nil
}

func validateDependencies(m *Module, w *InstanceWrapper) error {
	check := func(d Dependency) error {
		if _, ok := d.Token.(ForwardReference); ok || d.kind != depToken {
			return nil
		}
		if err := validateToken(d.Token); err != nil {
			return &InvalidProviderError{Module: m.name, Provider: w.Name, Reason: fmt.Sprintf("dependency at index [%d]: %v", d.Index, err)}
		}
		return nil
	}

	for _, d := range w.deps {
		if err := check(d); err != nil {
			return err
		}
	}
	for _, p := range w.props {
		if err := check(p.Dependency); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) metaInjectTokens(ctor any) (map[int]Token, bool) {
	v, ok := s.meta(ctor, MetadataInjectTokens)
	tokens, _ := v.(map[int]Token)
	return tokens, ok
}

func (s *scanner) metaOptional(ctor any) (map[int]bool, bool) {
	v, ok := s.meta(ctor, MetadataOptional)
	flags, _ := v.(map[int]bool)
	return flags, ok
}

// dependency builds the dependency for one parameter. t is nil for alias
// targets.
func (s *scanner) dependency(index int, t reflect.Type, override Token, hasOverride, optional bool) Dependency {
	d := Dependency{Index: index, Type: t, Optional: optional}

	var token Token = t
	if hasOverride {
		token = override
	}

	if opt, ok := token.(OptionalToken); ok {
		d.Optional = true
		token = opt.Token
	}
	if _, ok := token.(ForwardReference); ok {
		d.Forward = true
	}

	if !hasOverride && t != nil {
		if target, ok := refTarget(t); ok {
			token = target
			d.Forward = true
		}
	} else if t != nil && !d.Forward {
		if _, ok := refTarget(t); ok {
			d.Forward = true
		}
	}

	switch token {
	case contextToken:
		d.kind = depContext
	case ModuleRefToken:
		d.kind = depModuleRef
	case RequestToken:
		d.kind = depRequest
	}

	d.Token = token
	return d
}

// properties collects tagged fields and Property metadata.
func (s *scanner) properties(m *Module, w *InstanceWrapper, ctor any, result reflect.Type) ([]PropertyDependency, error) {
	fields, err := reflection.InjectFields(result)
	if err != nil {
		return nil, &InvalidProviderError{Module: m.name, Provider: w.Name, Reason: err.Error()}
	}

	if len(fields) > 0 && result.Kind() != reflect.Pointer {
		return nil, &InvalidProviderError{Module: m.name, Provider: w.Name, Reason: "property injection requires a pointer to a struct"}
	}

	var props []PropertyDependency
	for _, f := range fields {
		var override Token
		has := f.Key != ""
		if has {
			override = f.Key
		}
		props = append(props, PropertyDependency{
			Dependency: s.dependency(-1, f.Type, override, has, f.Optional),
			Key:        f.Name,
			field:      f.Index,
		})
	}

	declared, _ := s.meta(ctor, MetadataProperties)
	list, _ := declared.([]any)
	for _, item := range list {
		p, ok := item.(PropertyInjection)
		if !ok {
			continue
		}
		if isUnsafeKey(p.Key) {
			return nil, &UnsafeInjectionError{Provider: w.Name, Key: p.Key}
		}

		if result.Kind() != reflect.Pointer || result.Elem().Kind() != reflect.Struct {
			return nil, &InvalidProviderError{Module: m.name, Provider: w.Name, Reason: "property injection requires a pointer to a struct"}
		}
		field, ok := reflection.FieldByName(result, p.Key)
		if !ok {
			return nil, &InvalidProviderError{Module: m.name, Provider: w.Name, Reason: fmt.Sprintf("property %q is not an exported field", p.Key)}
		}

		dep := s.dependency(-1, field.Type, p.Token, p.Token != nil, p.Optional)
		props = append(props, PropertyDependency{Dependency: dep, Key: p.Key, field: field.Index})
	}

	return props, nil
}
