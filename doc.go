// Package bundi provides a module system, a dependency injection container and
// an HTTP request pipeline for Go services.
//
// # Overview
//
// An application is a graph of modules. Each module declares providers,
// controllers, the modules it imports and the tokens it exports:
//   - Three provider scopes: Singleton, Request and Transient
//   - Constructor, factory, value and alias providers
//   - Constructor and struct-tag property injection
//   - Forward references (Ref[T]) to break construction cycles
//   - Guards, interceptors, pipes and exception filters around every route
//   - Module-scoped middleware bound to route patterns
//   - Lifecycle hooks from module init to application shutdown
//
// # Basic Usage
//
// Declare modules, create the application and listen:
//
//	var UsersModule = bundi.NewModule("UsersModule",
//	    bundi.Providers(NewUsersService),
//	    bundi.Controllers(UsersController),
//	    bundi.Exports(bundi.TypeOf[*UsersService]()),
//	)
//
//	var AppModule = bundi.NewModule("AppModule", bundi.Imports(UsersModule))
//
//	app, err := bundi.Create(AppModule)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close(context.Background())
//
//	log.Fatal(app.Listen(":3000"))
//
// # Tokens
//
// A provider is registered under a token. Constructors are registered under
// the type they return (TypeOf[T]), which is also the token inferred for a
// constructor parameter of that type. Strings and symbols (NewSymbol) name
// values and factories:
//
//	bundi.Providers(
//	    bundi.Value("API_KEY", os.Getenv("API_KEY")),
//	    bundi.Factory(CacheToken, NewCache, bundi.TypeOf[*Config]()),
//	)
//
// # Scopes
//
//   - Singleton: one instance shared by the whole application
//   - Request: one instance per request, discarded when the request ends
//   - Transient: a new instance for every dependent
//
// A singleton that depends on a request-scoped provider, or on the request
// *Context, is promoted to request scope before anything is created.
//
// # Encapsulation
//
// A provider sees the providers of its own module, the tokens exported by
// the modules it imports, and the tokens exported by global modules.
// Resolving anything else fails with *UnknownDependencyError.
//
// # Controllers
//
// Controllers bind routes to methods by name:
//
//	var UsersController = bundi.NewController("/users", NewUsersController,
//	    bundi.Get("/:id", "FindOne", bundi.Args(bundi.Param("id").Pipe(pipes.ParseInt()))),
//	    bundi.Post("/", "Create", bundi.Args(bundi.Body())),
//	)
//
// A request runs guards, interceptors, pipes and the handler, in that order.
// Errors and panics from any stage go to exception filters, then to the
// default handler, which writes a JSON body with statusCode and message.
package bundi
