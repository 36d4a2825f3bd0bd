package bundi

// ModuleDef declares a module: a named grouping of providers and controllers
// with explicit import and export boundaries. A *ModuleDef is the module's
// identity; importing the same definition from several modules scans it once.
//
// Example:
//
//	var UsersModule = bundi.NewModule("UsersModule",
//	    bundi.Imports(DatabaseModule),
//	    bundi.Providers(NewUsersService),
//	    bundi.Controllers(UsersController),
//	    bundi.Exports(bundi.TypeOf[*UsersService]()),
//	)
type ModuleDef struct {
	name        string
	imports     []any
	providers   []any
	controllers []*ControllerDef
	exports     []Token
	global      bool
	class       any
	configure   func(MiddlewareConsumer)
}

// ModuleOption configures a ModuleDef.
type ModuleOption func(*ModuleDef)

// NewModule creates a new module definition.
func NewModule(name string, opts ...ModuleOption) *ModuleDef {
	m := &ModuleDef{name: name}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Name returns the module name.
func (m *ModuleDef) Name() string {
	return m.name
}

// Imports adds imported modules: *ModuleDef, *DynamicModule or a
// ForwardReference returning either.
func Imports(modules ...any) ModuleOption {
	return func(m *ModuleDef) {
		m.imports = append(m.imports, modules...)
	}
}

// Providers adds providers: constructor functions, Provider values or
// *Provider pointers.
func Providers(providers ...any) ModuleOption {
	return func(m *ModuleDef) {
		m.providers = append(m.providers, providers...)
	}
}

// Controllers adds controllers.
func Controllers(controllers ...*ControllerDef) ModuleOption {
	return func(m *ModuleDef) {
		m.controllers = append(m.controllers, controllers...)
	}
}

// Exports adds exported tokens. Exporting an imported *ModuleDef re-exports
// everything that module exports.
func Exports(tokens ...Token) ModuleOption {
	return func(m *ModuleDef) {
		m.exports = append(m.exports, tokens...)
	}
}

// Global marks the module as global: its exports are visible from every
// module without an explicit import.
func Global() ModuleOption {
	return func(m *ModuleDef) {
		m.global = true
	}
}

// ModuleClass sets a constructor for the module instance itself. The module
// instance is a singleton provider of the module and may implement lifecycle
// hooks.
func ModuleClass(ctor any) ModuleOption {
	return func(m *ModuleDef) {
		m.class = ctor
	}
}

// Configure registers the module's middleware configuration.
//
//	bundi.Configure(func(consumer bundi.MiddlewareConsumer) {
//	    consumer.Apply(NewAuditMiddleware).Exclude("/health").ForRoutes("*")
//	})
func Configure(fn func(MiddlewareConsumer)) ModuleOption {
	return func(m *ModuleDef) {
		m.configure = fn
	}
}

// DynamicModule extends a module definition with metadata supplied at
// composition time, typically returned by a ForRoot style function. Each
// *DynamicModule is scanned as its own module.
type DynamicModule struct {
	Module      *ModuleDef
	Imports     []any
	Providers   []any
	Controllers []*ControllerDef
	Exports     []Token
	Global      bool
}

// moduleMetadata is the merged view of a static definition and its dynamic
// extension.
type moduleMetadata struct {
	def         *ModuleDef
	key         any
	imports     []any
	providers   []any
	controllers []*ControllerDef
	exports     []Token
	global      bool
}

func resolveModuleMetadata(target any) (*moduleMetadata, error) {
	switch m := target.(type) {
	case *ModuleDef:
		if m == nil {
			return nil, ErrModuleNil
		}
		return &moduleMetadata{
			def:         m,
			key:         m,
			imports:     m.imports,
			providers:   m.providers,
			controllers: m.controllers,
			exports:     m.exports,
			global:      m.global,
		}, nil
	case *DynamicModule:
		if m == nil || m.Module == nil {
			return nil, ErrModuleNil
		}
		meta := &moduleMetadata{
			def:    m.Module,
			key:    m,
			global: m.Module.global || m.Global,
		}
		meta.imports = append(append(meta.imports, m.Module.imports...), m.Imports...)
		meta.providers = append(append(meta.providers, m.Module.providers...), m.Providers...)
		meta.controllers = append(append(meta.controllers, m.Module.controllers...), m.Controllers...)
		meta.exports = append(append(meta.exports, m.Module.exports...), m.Exports...)
		return meta, nil
	case ForwardReference:
		return resolveModuleMetadata(m.Unwrap())
	case nil:
		return nil, ErrModuleNil
	default:
		return nil, &InvalidProviderError{Provider: tokenName(target), Reason: "imports must be *ModuleDef, *DynamicModule or ForwardRef"}
	}
}
