package bundi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type requestCounter struct{ n int }

type counterReport struct{ counter *requestCounter }

func TestInjector_FreshContextsAreReleased(t *testing.T) {
	built := 0
	token := TypeOf[*requestCounter]()
	root := NewModule("app", Providers(Provider{
		Provide: token,
		UseFactory: func() *requestCounter {
			built++
			return &requestCounter{n: built}
		},
		Scope: Request,
	}))

	app, err := Create(root, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	w, ok := app.Container().Root().Provider(token)
	require.True(t, ok)
	ctx := context.Background()

	t.Run("application resolve", func(t *testing.T) {
		for range 100 {
			_, err := app.Resolve(ctx, token)
			require.NoError(t, err)
		}
		assert.Equal(t, 0, app.injector.trackedContexts())
		assert.Equal(t, 0, w.cachedCount())
	})

	t.Run("module ref create", func(t *testing.T) {
		v, err := app.ModuleRef().Create(ctx, func(c *requestCounter) *counterReport {
			return &counterReport{counter: c}
		})
		require.NoError(t, err)
		assert.NotNil(t, v.(*counterReport))
		assert.Equal(t, 0, app.injector.trackedContexts())
	})

	t.Run("explicit id is kept", func(t *testing.T) {
		id := NewContextID()
		first, err := app.ModuleRef().Resolve(ctx, token, id)
		require.NoError(t, err)
		second, err := app.ModuleRef().Resolve(ctx, token, id)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, app.injector.trackedContexts())

		app.injector.evict(ctx, id)
		assert.Equal(t, 0, app.injector.trackedContexts())
	})
}
