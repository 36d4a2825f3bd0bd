package bundi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

// Application is a running module graph bound to an HTTP adapter.
//
// Example:
//
//	app, err := bundi.Create(AppModule, bundi.WithAutoInit(false))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app.SetGlobalPrefix("/api")
//	app.UseGlobalGuards(NewAuthGuard)
//	app.EnableShutdownHooks()
//	if err := app.Listen(":3000"); err != nil {
//	    log.Fatal(err)
//	}
type Application struct {
	id        string
	config    *Config
	logger    *zap.Logger
	metadata  *MetadataRegistry
	reflector *Reflector
	container *Container
	scanner   *scanner
	injector  *Injector
	adapter   HTTPAdapter
	router    *routerExecution

	// initMu serializes Init and Close.
	initMu sync.Mutex

	mu            sync.RWMutex
	server        *http.Server
	globals       enhancerSet
	prefix        string
	prefixExclude []*routematch.Matcher
	handlers      []func(http.Handler) http.Handler
	cors          *cors.Options
	chain         []*boundMiddleware
	routes        []string
	initialized   bool
	closed        bool
	stopSignals   func()
}

var _ Getter = (*Application)(nil)

// Create scans root and every module it imports, resolves every singleton
// provider and controller, and, unless WithAutoInit(false) is given,
// initializes the application. Any bootstrap failure aborts Create.
func Create(root any, opts ...Option) (*Application, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}

	cfg := o.config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg); err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	metadata := o.metadata
	if metadata == nil {
		metadata = defaultMetadata
	}

	adapter := o.adapter
	if adapter == nil {
		adapter = NewChiAdapter(nil)
	}

	app := &Application{
		id:        uuid.NewString(),
		config:    cfg,
		logger:    logger,
		metadata:  metadata,
		reflector: NewReflector(metadata),
		container: NewContainer(logger),
		adapter:   adapter,
		server:    o.server,
	}

	app.scanner = newScanner(app.container, metadata, logger)
	app.scanner.scanCore(map[Token]any{
		TypeOf[*zap.Logger]():       logger,
		TypeOf[*Reflector]():        app.reflector,
		TypeOf[*MetadataRegistry](): metadata,
		TypeOf[*Config]():           cfg,
		TypeOf[HTTPAdapter]():       adapter,
		TypeOf[*Application]():      app,
	})

	rootModule, err := app.scanner.scan(root)
	if err != nil {
		return nil, err
	}
	for _, p := range o.overrides {
		if err := app.scanner.override(p); err != nil {
			return nil, err
		}
	}
	bubbleScopes(app.container, logger)

	app.injector = newInjector(app.container, app.scanner, logger)
	app.router = &routerExecution{
		injector: app.injector,
		logger:   logger,
		root:     rootModule,
		globals:  app.globalEnhancers,
		param:    adapter.Param,
	}

	if err := app.instantiateSingletons(context.Background()); err != nil {
		return nil, err
	}

	if cfg.GlobalPrefix != "" {
		app.SetGlobalPrefix(cfg.GlobalPrefix)
	}

	if o.autoInit {
		if err := app.Init(context.Background()); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// instantiateSingletons resolves every singleton provider and controller,
// imported modules first.
func (a *Application) instantiateSingletons(ctx context.Context) error {
	for _, m := range a.container.instantiationOrder() {
		wrappers := append(m.Providers(), m.Controllers()...)
		for _, w := range wrappers {
			if w.scope != Singleton {
				continue
			}
			if _, err := a.injector.loadInstance(ctx, w, StaticContextID, nil); err != nil {
				return err
			}
		}
		a.logger.Info("module dependencies initialized", zap.String("module", m.name))
	}
	return nil
}

// ID returns the application id.
func (a *Application) ID() string {
	return a.id
}

// Container returns the module container.
func (a *Application) Container() *Container {
	return a.container
}

// HTTPAdapter returns the HTTP adapter.
func (a *Application) HTTPAdapter() HTTPAdapter {
	return a.adapter
}

// Handler returns the application's HTTP handler. Routes are registered by
// Init.
func (a *Application) Handler() http.Handler {
	return a.adapter
}

// Logger returns the application logger.
func (a *Application) Logger() *zap.Logger {
	return a.logger
}

// Config returns the application configuration.
func (a *Application) Config() *Config {
	return a.config
}

// Routes returns the registered routes as "METHOD /path".
func (a *Application) Routes() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.routes...)
}

// WriteGraph writes the module import graph, in Graphviz DOT format unless
// another format is given.
func (a *Application) WriteGraph(w io.Writer, format ...GraphFormat) error {
	return a.container.WriteGraph(w, format...)
}

func (a *Application) isInitialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

// ========================================
// Configuration before Init
// ========================================

// SetGlobalPrefix prefixes every route path, except those matching
// exclude. It has no effect once the application is initialized.
func (a *Application) SetGlobalPrefix(prefix string, exclude ...string) *Application {
	if a.isInitialized() {
		a.logger.Warn("global prefix set after initialization is ignored", zap.String("prefix", prefix))
		return a
	}

	matchers := make([]*routematch.Matcher, len(exclude))
	for i, e := range exclude {
		matchers[i] = routematch.Compile(e, "")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.prefix = prefix
	a.prefixExclude = matchers
	return a
}

// GlobalPrefix returns the global route prefix.
func (a *Application) GlobalPrefix() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.prefix
}

// Use adds net/http middleware run before module middleware. It has no
// effect once the application is initialized.
func (a *Application) Use(middleware ...func(http.Handler) http.Handler) *Application {
	if a.isInitialized() {
		a.logger.Warn("middleware added after initialization is ignored")
		return a
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, middleware...)
	return a
}

// EnableCors installs CORS handling for every request.
func (a *Application) EnableCors(opts cors.Options) *Application {
	if a.isInitialized() {
		a.logger.Warn("CORS enabled after initialization is ignored")
		return a
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cors = &opts
	return a
}

// UseGlobalGuards adds guards run for every route, before controller and
// method guards.
func (a *Application) UseGlobalGuards(guards ...any) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.globals.guards = append(a.globals.guards, guards...)
	return a
}

// UseGlobalInterceptors adds interceptors wrapping every route.
func (a *Application) UseGlobalInterceptors(interceptors ...any) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.globals.interceptors = append(a.globals.interceptors, interceptors...)
	return a
}

// UseGlobalPipes adds pipes run for every bound argument, after parameter,
// method and controller pipes.
func (a *Application) UseGlobalPipes(pipes ...any) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.globals.pipes = append(a.globals.pipes, pipes...)
	return a
}

// UseGlobalFilters adds exception filters consulted after method and
// controller filters. They also handle middleware failures.
func (a *Application) UseGlobalFilters(filters ...any) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.globals.filters = append(a.globals.filters, filters...)
	return a
}

func (a *Application) globalEnhancers() enhancerSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.globals.clone()
}

func (a *Application) globalFilters() []hosted {
	filters := a.globalEnhancers().filters
	out := make([]hosted, len(filters))
	for i, f := range filters {
		out[i] = hosted{spec: f, host: a.router.root}
	}
	return out
}

// prefixed joins the global prefix to path unless path is excluded.
func (a *Application) prefixed(method, path string) string {
	a.mu.RLock()
	prefix, exclude := a.prefix, a.prefixExclude
	a.mu.RUnlock()

	path = routematch.Join(path)
	if prefix == "" {
		return path
	}
	for _, m := range exclude {
		if m.Match(method, path) {
			return path
		}
	}
	return routematch.Join(prefix, path)
}

// ========================================
// Init
// ========================================

// Init runs OnModuleInit hooks, installs middleware, registers controller
// routes and runs OnApplicationBootstrap hooks. Calling it again is a no-op.
func (a *Application) Init(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	a.mu.RLock()
	initialized, closed := a.initialized, a.closed
	a.mu.RUnlock()
	if closed {
		return ErrApplicationClosed
	}
	if initialized {
		return nil
	}

	modules := a.container.byDistance()

	err := callHook(modules, "OnModuleInit", func(instance any) (bool, error) {
		h, ok := instance.(OnModuleInit)
		if !ok {
			return false, nil
		}
		return true, h.OnModuleInit(ctx)
	})
	if err != nil {
		return err
	}

	resolver := &middlewareResolver{
		injector: a.injector,
		prefix:   func(path string) string { return a.prefixed("", path) },
	}
	chain, err := resolver.resolve(ctx, modules)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.chain = chain
	handlers := append([]func(http.Handler) http.Handler(nil), a.handlers...)
	corsOpts := a.cors
	a.mu.Unlock()

	for _, h := range handlers {
		a.adapter.Use(h)
	}
	if corsOpts != nil {
		a.adapter.Use(cors.Handler(*corsOpts))
	}
	a.adapter.Use(a.requestMiddleware)

	if err := a.registerRoutes(); err != nil {
		return err
	}
	a.adapter.NotFound(http.HandlerFunc(a.notFound))

	err = callHook(modules, "OnApplicationBootstrap", func(instance any) (bool, error) {
		h, ok := instance.(OnApplicationBootstrap)
		if !ok {
			return false, nil
		}
		return true, h.OnApplicationBootstrap(ctx)
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()

	a.logger.Info("application successfully started", zap.String("id", a.id))
	return nil
}

func (a *Application) registerRoutes() error {
	var routes []string
	for _, m := range a.container.Modules() {
		for _, w := range m.Controllers() {
			def := m.controllerDef(w)
			if def == nil {
				continue
			}
			base := routematch.Join(def.prefix)
			a.logger.Info("controller mapped", zap.String("controller", w.Name), zap.String("prefix", base))

			for _, route := range def.routes {
				path := a.prefixed(route.Method, routematch.Join(def.prefix, route.Path))
				h, err := a.router.newRouteHandler(w, def, route, path)
				if err != nil {
					return &ModuleError{Module: m.name, Cause: fmt.Errorf("controller %s: %w", w.Name, err)}
				}

				a.adapter.Handle(route.Method, path, h)
				mapped := route.Method + " " + path
				routes = append(routes, mapped)
				a.logger.Info("Mapped {" + mapped + "} route")
			}
		}
	}

	a.mu.Lock()
	a.routes = routes
	a.mu.Unlock()
	return nil
}

// requestMiddleware creates the request *Context and runs the module
// middleware matching the request.
func (a *Application) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := newContext(w, r, a.adapter.Param)
		defer a.injector.evict(context.WithoutCancel(c.Context()), c.ID())

		method, path := c.Method(), c.Path()
		var matched []*boundMiddleware
		for _, mw := range a.chain {
			if mw.matches(method, path) {
				matched = append(matched, mw)
			}
		}

		err := runMiddleware(c, matched, func() {
			next.ServeHTTP(c.w, c.r)
		})
		if err != nil {
			a.router.handleException(newExecutionContext(c, nil, nil), a.globalFilters(), err)
		}
	})
}

func (a *Application) notFound(w http.ResponseWriter, r *http.Request) {
	c := RequestFromContext(r.Context())
	if c == nil {
		c = newContext(w, r, a.adapter.Param)
		defer a.injector.evict(context.WithoutCancel(c.Context()), c.ID())
	} else {
		c.setRequest(r)
	}

	err := NewNotFoundException(map[string]any{
		"statusCode": http.StatusNotFound,
		"message":    fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path),
		"error":      "Not Found",
	})
	a.router.handleException(newExecutionContext(c, nil, nil), a.globalFilters(), err)
}

// ========================================
// Lookup
// ========================================

// Get returns the singleton registered under token, looked up from the root
// module. Request and Transient providers fail with *InvalidScopeError.
func (a *Application) Get(token Token, opts ...GetOption) (any, error) {
	if a.isClosed() {
		return nil, ErrApplicationClosed
	}
	return a.injector.moduleRef(a.router.root).Get(token, opts...)
}

// Resolve returns an instance of token whatever its scope, under a fresh
// context id.
func (a *Application) Resolve(ctx context.Context, token Token) (any, error) {
	if a.isClosed() {
		return nil, ErrApplicationClosed
	}
	return a.injector.moduleRef(a.router.root).Resolve(ctx, token, "")
}

// ModuleRef returns a reference bound to the root module.
func (a *Application) ModuleRef() *ModuleRef {
	return a.injector.moduleRef(a.router.root)
}

func (a *Application) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// ========================================
// Serving and shutdown
// ========================================

// Listen initializes the application if needed and serves HTTP on addr, or
// on Config.Address when addr is empty. It returns nil once Close stops the
// server.
func (a *Application) Listen(addr string) error {
	if err := a.Init(context.Background()); err != nil {
		return err
	}
	if addr == "" {
		addr = a.config.Address
	}

	a.mu.Lock()
	server := a.server
	if server == nil {
		server = &http.Server{ReadHeaderTimeout: a.config.ReadHeaderTimeout}
		a.server = server
	}
	server.Addr = addr
	server.Handler = a.adapter
	a.mu.Unlock()

	a.logger.Info("application listening", zap.String("address", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the application down: OnModuleDestroy hooks, then
// BeforeApplicationShutdown hooks, then the HTTP server, then
// OnApplicationShutdown hooks. Request-scoped instances still cached are
// evicted and Disposable singletons are closed last, in reverse creation
// order. A second call returns ErrApplicationClosed.
func (a *Application) Close(ctx context.Context) error {
	return a.shutdown(ctx, "")
}

func (a *Application) shutdown(ctx context.Context, sig string) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrApplicationClosed
	}
	a.closed = true
	server, stop := a.server, a.stopSignals
	a.stopSignals = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}

	modules := a.container.byDistance()
	var errs []error

	errs = append(errs, callHookAll(modules, "OnModuleDestroy", func(instance any) (bool, error) {
		h, ok := instance.(OnModuleDestroy)
		if !ok {
			return false, nil
		}
		return true, h.OnModuleDestroy(ctx)
	}))

	errs = append(errs, callHookAll(modules, "BeforeApplicationShutdown", func(instance any) (bool, error) {
		h, ok := instance.(BeforeApplicationShutdown)
		if !ok {
			return false, nil
		}
		return true, h.BeforeApplicationShutdown(ctx, sig)
	}))

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	errs = append(errs, callHookAll(modules, "OnApplicationShutdown", func(instance any) (bool, error) {
		h, ok := instance.(OnApplicationShutdown)
		if !ok {
			return false, nil
		}
		return true, h.OnApplicationShutdown(ctx, sig)
	}))

	a.injector.evictAll(ctx)
	errs = append(errs, a.injector.lifecycle.dispose(ctx))

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("application shutdown completed with errors", zap.Error(err))
	} else {
		a.logger.Info("application closed", zap.String("id", a.id))
	}
	return err
}

// EnableShutdownHooks closes the application when one of signals is
// received, SIGINT and SIGTERM by default. The signal name is passed to the
// shutdown hooks.
func (a *Application) EnableShutdownHooks(signals ...os.Signal) *Application {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, signals...)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}

	a.mu.Lock()
	if a.stopSignals != nil {
		a.stopSignals()
	}
	a.stopSignals = stop
	a.mu.Unlock()

	go func() {
		select {
		case sig := <-ch:
			a.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			ctx, cancel := context.Background(), context.CancelFunc(func() {})
			if a.config.ShutdownTimeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, a.config.ShutdownTimeout)
			}
			defer cancel()
			if err := a.shutdown(ctx, sig.String()); err != nil && !errors.Is(err, ErrApplicationClosed) {
				a.logger.Error("shutdown failed", zap.Error(err))
			}
		case <-done:
		}
	}()
	return a
}
