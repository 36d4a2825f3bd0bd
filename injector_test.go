package bundi_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/testutil"
)

type requestLogger struct {
	id string
}

func newRequestLogger() *requestLogger {
	return &requestLogger{id: uuid.NewString()}
}

type reportService struct {
	logger *requestLogger
}

func newReportService(l *requestLogger) *reportService {
	return &reportService{logger: l}
}

type reportController struct {
	reports *reportService
}

func newReportController(r *reportService) *reportController {
	return &reportController{reports: r}
}

func init() {
	bundi.Injectable(newRequestLogger, bundi.WithScope(bundi.Request))
}

func TestInjector_Scopes(t *testing.T) {
	t.Run("singleton identity", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).WithProviders(testutil.NewTestService).Build()
		ref := app.ModuleRef()

		a := testutil.AssertResolvable[*testutil.TestService](t, app)
		b := testutil.AssertResolvable[*testutil.TestService](t, app)
		assert.Same(t, a, b)

		testutil.AssertSameInstance(t, ref, bundi.TypeOf[*testutil.TestService](),
			bundi.StaticContextID, bundi.NewContextID(), bundi.NewContextID())
	})

	t.Run("request isolation", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).WithProviders(bundi.Provider{
			Provide:  "session",
			UseClass: testutil.NewTestService,
			Scope:    bundi.Request,
		}).Build()
		ref := app.ModuleRef()

		s1, s2 := bundi.NewContextID(), bundi.NewContextID()
		testutil.AssertDistinctInstances(t, ref, "session", s1, s2)
		testutil.AssertSameInstance(t, ref, "session", s1, s1)

		_, err := app.Get("session")
		var scopeErr *bundi.InvalidScopeError
		require.ErrorAs(t, err, &scopeErr)
		assert.Equal(t, bundi.Request, scopeErr.Scope)
	})

	t.Run("transient freshness", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).WithProviders(bundi.Provider{
			Provide:  "token",
			UseClass: testutil.NewTestService,
			Scope:    bundi.Transient,
		}).Build()

		id := bundi.NewContextID()
		testutil.AssertDistinctInstances(t, app.ModuleRef(), "token", id, id, id)
	})

	t.Run("scope bubbles to dependents", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).
			WithProviders(newRequestLogger, newReportService).
			WithControllers(bundi.NewController("/reports", newReportController)).
			Build()

		root := app.Container().Root()
		service, ok := root.Provider(bundi.TypeOf[*reportService]())
		require.True(t, ok)
		assert.Equal(t, bundi.Request, service.Scope())
		require.Len(t, root.Controllers(), 1)
		assert.Equal(t, bundi.Request, root.Controllers()[0].Scope())

		ref := app.ModuleRef()
		testutil.AssertDistinctInstances(t, ref, bundi.TypeOf[*reportService](), bundi.NewContextID(), bundi.NewContextID())
	})
}

func TestInjector_Providers(t *testing.T) {
	t.Parallel()

	type config struct{ dsn string }
	apiKey := bundi.NewSymbol("API_KEY")

	app := testutil.NewAppBuilder(t).WithProviders(
		bundi.Value(apiKey, "secret"),
		bundi.Factory(bundi.TypeOf[*config](), func(key string) *config {
			return &config{dsn: "postgres://" + key}
		}, apiKey),
		bundi.Alias("cfg", bundi.TypeOf[*config]()),
		bundi.Provider{
			Provide:    "maybe",
			UseFactory: func(v any) string { return "missing" },
			Inject:     []any{bundi.Optional("nothing")},
		},
	).Build()

	key, err := bundi.ResolveToken[string](app, apiKey)
	require.NoError(t, err)
	assert.Equal(t, "secret", key)

	cfg := testutil.AssertResolvable[*config](t, app)
	assert.Equal(t, "postgres://secret", cfg.dsn)

	alias, err := app.Get("cfg")
	require.NoError(t, err)
	assert.Same(t, cfg, alias)

	maybe, err := bundi.ResolveToken[string](app, "maybe")
	require.NoError(t, err)
	assert.Equal(t, "missing", maybe)
}

func TestInjector_Cycles(t *testing.T) {
	chain := func(scope bundi.Scope) []any {
		next := map[string]string{"A": "B", "B": "C", "C": "A"}
		var providers []any
		for _, name := range []string{"A", "B", "C"} {
			providers = append(providers, bundi.Provider{
				Provide:    name,
				UseFactory: func(any) string { return name },
				Inject:     []any{next[name]},
				Scope:      scope,
			})
		}
		return providers
	}

	t.Run("singleton cycle fails bootstrap", func(t *testing.T) {
		t.Parallel()

		_, err := testutil.NewAppBuilder(t).WithProviders(chain(bundi.Singleton)...).TryBuild()
		var cycle *bundi.CircularDependencyError
		require.ErrorAs(t, err, &cycle)
		require.Len(t, cycle.Chain, 4)
		assert.Equal(t, cycle.Chain[0], cycle.Chain[3])
		assert.Contains(t, err.Error(), "circular dependency detected")
	})

	for _, scope := range []bundi.Scope{bundi.Request, bundi.Transient} {
		t.Run(scope.String()+" cycle fails resolution", func(t *testing.T) {
			t.Parallel()

			app := testutil.NewAppBuilder(t).WithProviders(chain(scope)...).Build()
			_, err := app.Resolve(context.Background(), "A")
			var cycle *bundi.CircularDependencyError
			require.ErrorAs(t, err, &cycle)
			assert.Equal(t, []string{"A", "B", "C", "A"}, cycle.Chain)
		})
	}
}

type catsService struct {
	dogs bundi.Ref[*dogsService]
}

func newCatsService(dogs bundi.Ref[*dogsService]) *catsService {
	return &catsService{dogs: dogs}
}

func (c *catsService) Meow() string { return "meow" }

func (c *catsService) AskDogs() (string, error) {
	dogs, err := c.dogs.Get()
	if err != nil {
		return "", err
	}
	return dogs.Woof(), nil
}

type dogsService struct {
	cats bundi.Ref[*catsService]
}

func newDogsService(cats bundi.Ref[*catsService]) *dogsService {
	return &dogsService{cats: cats}
}

func (d *dogsService) Woof() string { return "woof" }

func (d *dogsService) AskCats() (string, error) {
	cats, err := d.cats.Get()
	if err != nil {
		return "", err
	}
	return cats.Meow(), nil
}

func TestInjector_ForwardReferences(t *testing.T) {
	t.Parallel()

	app := testutil.NewAppBuilder(t).WithProviders(newCatsService, newDogsService).Build()

	cats := testutil.AssertResolvable[*catsService](t, app)
	dogs := testutil.AssertResolvable[*dogsService](t, app)

	woof, err := cats.AskDogs()
	require.NoError(t, err)
	assert.Equal(t, "woof", woof)

	meow, err := dogs.AskCats()
	require.NoError(t, err)
	assert.Equal(t, "meow", meow)

	resolved, err := cats.dogs.Get()
	require.NoError(t, err)
	assert.Same(t, dogs, resolved)
}

type injectedFields struct {
	Service *testutil.TestService
	Missing *testutil.TestDatabase
}

func newInjectedFields() *injectedFields { return &injectedFields{} }

type unsafeTarget struct{}

func newUnsafeTarget() *unsafeTarget { return &unsafeTarget{} }

func TestInjector_PropertyInjection(t *testing.T) {
	registry := bundi.NewMetadataRegistry()
	bundi.InjectableIn(registry, newInjectedFields,
		bundi.Property("Service", bundi.TypeOf[*testutil.TestService]()),
		bundi.OptionalProperty("Missing", bundi.TypeOf[*testutil.TestDatabase]()),
	)

	t.Run("fields are assigned", func(t *testing.T) {
		app := testutil.NewAppBuilder(t).
			WithProviders(testutil.NewTestService, newInjectedFields).
			WithOptions(bundi.WithMetadata(registry)).
			Build()

		v := testutil.AssertResolvable[*injectedFields](t, app)
		assert.NotNil(t, v.Service)
		assert.Nil(t, v.Missing)
	})

	for _, key := range []string{"__proto__", "constructor", "prototype"} {
		t.Run("rejects "+key, func(t *testing.T) {
			reg := bundi.NewMetadataRegistry()
			bundi.InjectableIn(reg, newUnsafeTarget, bundi.Property(key, "anything"))

			_, err := testutil.NewAppBuilder(t).
				WithProviders(newUnsafeTarget).
				WithOptions(bundi.WithMetadata(reg)).
				TryBuild()
			var unsafe *bundi.UnsafeInjectionError
			require.ErrorAs(t, err, &unsafe)
			assert.Contains(t, err.Error(), "unsafe injection")
		})
	}
}

func TestInjector_ConcurrentFirstResolution(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	app := testutil.NewAppBuilder(t).WithProviders(bundi.Provider{
		Provide: "shared",
		UseFactory: func() *testutil.TestService {
			calls.Add(1)
			return testutil.NewTestService()
		},
		Scope: bundi.Request,
	}).Build()

	ref := app.ModuleRef()
	id := bundi.NewContextID()

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := ref.Resolve(context.Background(), "shared", id)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results[1:] {
		assert.Same(t, results[0], v)
	}
}
