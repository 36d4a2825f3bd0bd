package bundi_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/testutil"
)

var databaseToken = bundi.TypeOf[*testutil.TestDatabase]()

func databaseModule() *bundi.ModuleDef {
	return bundi.NewModule("DatabaseModule",
		bundi.Providers(testutil.NewTestDatabase),
		bundi.Exports(databaseToken),
	)
}

func TestModule_Encapsulation(t *testing.T) {
	t.Run("exported provider is visible to importers", func(t *testing.T) {
		t.Parallel()

		db := databaseModule()
		users := bundi.NewModule("UsersModule",
			bundi.Imports(db),
			bundi.Providers(testutil.NewTestRepository),
		)
		app := testutil.NewAppBuilder(t).WithImports(users).Build()

		dbModule, ok := app.Container().Module(db)
		require.True(t, ok)
		usersModule, ok := app.Container().Module(users)
		require.True(t, ok)

		repo, err := bundi.Resolve[*testutil.TestRepository](app)
		require.NoError(t, err)
		w, _ := dbModule.Provider(databaseToken)
		instance, _ := w.Instance()
		assert.Same(t, instance, repo.DB)
		assert.Greater(t, dbModule.Distance(), usersModule.Distance())
	})

	t.Run("private provider is not visible", func(t *testing.T) {
		t.Parallel()

		private := bundi.NewModule("PrivateModule", bundi.Providers(testutil.NewTestDatabase))
		users := bundi.NewModule("UsersModule",
			bundi.Imports(private),
			bundi.Providers(testutil.NewTestRepository),
		)

		_, err := testutil.NewAppBuilder(t).WithImports(users).TryBuild()
		var unknown *bundi.UnknownDependencyError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "UsersModule", unknown.Module)
		assert.Equal(t, 0, unknown.Index)
	})

	t.Run("global module needs no import", func(t *testing.T) {
		t.Parallel()

		shared := bundi.NewModule("SharedModule",
			bundi.Global(),
			bundi.Providers(testutil.NewTestDatabase),
			bundi.Exports(databaseToken),
		)
		users := bundi.NewModule("UsersModule", bundi.Providers(testutil.NewTestRepository))

		app := testutil.NewAppBuilder(t).WithImports(shared, users).Build()
		repo := testutil.AssertResolvable[*testutil.TestRepository](t, app)
		assert.NotNil(t, repo.DB)
	})

	t.Run("re-exported module", func(t *testing.T) {
		t.Parallel()

		db := databaseModule()
		core := bundi.NewModule("CoreModule", bundi.Imports(db), bundi.Exports(db))
		feature := bundi.NewModule("FeatureModule",
			bundi.Imports(core),
			bundi.Providers(testutil.NewTestRepository),
		)

		app := testutil.NewAppBuilder(t).WithImports(feature).Build()
		repo := testutil.AssertResolvable[*testutil.TestRepository](t, app)
		assert.NotNil(t, repo.DB)
	})

	t.Run("exporting a module that is not imported fails", func(t *testing.T) {
		t.Parallel()

		core := bundi.NewModule("CoreModule", bundi.Exports(databaseModule()))
		_, err := testutil.NewAppBuilder(t).WithImports(core).TryBuild()
		var modErr *bundi.ModuleError
		require.ErrorAs(t, err, &modErr)
		assert.Equal(t, "CoreModule", modErr.Module)
	})
}

type dsn string

func storageModule(url string) *bundi.DynamicModule {
	return &bundi.DynamicModule{
		Module:    bundi.NewModule("StorageModule"),
		Providers: []any{bundi.Value(bundi.TypeOf[dsn](), dsn(url))},
		Exports:   []bundi.Token{bundi.TypeOf[dsn]()},
	}
}

func TestModule_Dynamic(t *testing.T) {
	t.Parallel()

	primary := storageModule("postgres://primary")
	replica := storageModule("postgres://replica")

	reader := bundi.NewModule("ReaderModule",
		bundi.Imports(replica),
		bundi.Providers(bundi.Factory("reader", func(d dsn) string { return "reader@" + string(d) }, bundi.TypeOf[dsn]())),
		bundi.Exports("reader"),
	)

	app := testutil.NewAppBuilder(t).WithImports(primary, reader).Build()

	_, ok := app.Container().Module(primary)
	assert.True(t, ok)
	_, ok = app.Container().Module(replica)
	assert.True(t, ok)

	got, err := bundi.ResolveToken[dsn](app, bundi.TypeOf[dsn]())
	require.NoError(t, err)
	assert.Equal(t, dsn("postgres://primary"), got)

	r, err := bundi.ResolveToken[string](app, "reader")
	require.NoError(t, err)
	assert.Equal(t, "reader@postgres://replica", r)
}

type catalog struct {
	ref *bundi.ModuleRef
}

func newCatalog(ref *bundi.ModuleRef) *catalog {
	return &catalog{ref: ref}
}

func TestModule_ModuleRef(t *testing.T) {
	t.Parallel()

	catalogModule := bundi.NewModule("CatalogModule", bundi.Providers(newCatalog), bundi.Exports(bundi.TypeOf[*catalog]()))
	unrelated := bundi.NewModule("UnrelatedModule", bundi.Providers(bundi.Value("secret", "s3cr3t")))

	app := testutil.NewAppBuilder(t).WithImports(catalogModule, unrelated).Build()
	c := testutil.AssertResolvable[*catalog](t, app)

	assert.Equal(t, "CatalogModule", c.ref.Module().Name())

	t.Run("strict lookup stays inside the module", func(t *testing.T) {
		_, err := c.ref.Get("secret", bundi.Strict())
		var unknown *bundi.UnknownElementError
		require.ErrorAs(t, err, &unknown)
	})

	t.Run("non-strict lookup searches every module", func(t *testing.T) {
		v, err := c.ref.Get("secret")
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", v)
	})

	t.Run("create builds a fresh instance", func(t *testing.T) {
		a, err := c.ref.Create(context.Background(), newCatalog)
		require.NoError(t, err)
		b, err := c.ref.Create(context.Background(), newCatalog)
		require.NoError(t, err)
		assert.NotSame(t, a, b)
		assert.NotSame(t, c, a)
	})
}

type billingModule struct {
	db *testutil.TestDatabase
}

func newBillingModule(db *testutil.TestDatabase) *billingModule {
	return &billingModule{db: db}
}

func TestModule_Class(t *testing.T) {
	t.Parallel()

	billing := bundi.NewModule("BillingModule",
		bundi.ModuleClass(newBillingModule),
		bundi.Imports(databaseModule()),
	)
	app := testutil.NewAppBuilder(t).WithImports(billing).Build()

	mod, ok := app.Container().Module(billing)
	require.True(t, ok)
	w, ok := mod.Provider(bundi.TypeOf[*billingModule]())
	require.True(t, ok)
	assert.Equal(t, bundi.Singleton, w.Scope())

	instance := testutil.AssertResolvable[*billingModule](t, app)
	assert.NotNil(t, instance.db)
}

func TestModule_WriteGraph(t *testing.T) {
	t.Parallel()

	users := bundi.NewModule("UsersModule", bundi.Imports(databaseModule()), bundi.Providers(testutil.NewTestRepository))
	app := testutil.NewAppBuilder(t).WithImports(users).Build()

	var buf bytes.Buffer
	require.NoError(t, app.WriteGraph(&buf))

	out := buf.String()
	assert.Contains(t, out, `digraph "modules"`)
	for _, name := range []string{"AppModule", "UsersModule", "DatabaseModule"} {
		assert.Contains(t, out, `label="`+name+`"`)
	}

	buf.Reset()
	require.NoError(t, app.WriteGraph(&buf, bundi.GraphText))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Contains(t, lines, "AppModule -> UsersModule")
	assert.Contains(t, lines, "UsersModule -> DatabaseModule")
	assert.Contains(t, lines, "DatabaseModule")
}

func TestModule_ImportCycle(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)

	var left, right *bundi.ModuleDef
	left = bundi.NewModule("LeftModule",
		bundi.Imports(bundi.ForwardRef(func() bundi.Token { return right })),
		bundi.Providers(testutil.NewTestDatabase),
		bundi.Exports(databaseToken),
	)
	right = bundi.NewModule("RightModule", bundi.Imports(left))

	app := testutil.NewAppBuilder(t).
		WithImports(left).
		WithOptions(bundi.WithLogger(zap.New(core))).
		Build()
	testutil.AssertResolvable[*testutil.TestDatabase](t, app)

	entries := logs.FilterMessage("module imports form a cycle, ordering them by scan order").All()
	require.Len(t, entries, 1)
	modules, ok := entries[0].ContextMap()["modules"].([]any)
	require.True(t, ok)
	assert.Contains(t, modules, "LeftModule")
	assert.Contains(t, modules, "RightModule")
}
