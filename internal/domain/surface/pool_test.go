package surface_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface/surfacetest"
)

func TestPoolReusesMostRecentlyReleased(t *testing.T) {
	ctx := context.Background()
	factory, built := surfacetest.Factory()
	pool := surface.NewPool(factory, 0)

	a, err := pool.Acquire(ctx)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Created())

	require.NoError(t, pool.Release(a))
	require.NoError(t, pool.Release(b))
	assert.Equal(t, 2, pool.Len())

	got, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, 2, pool.Created())
	assert.Len(t, built(), 2)
}

func TestPoolClose(t *testing.T) {
	ctx := context.Background()
	factory, _ := surfacetest.Factory()
	pool := surface.NewPool(factory, 0)

	a, _ := pool.Acquire(ctx)
	b, _ := pool.Acquire(ctx)
	require.NoError(t, pool.Release(a))

	require.NoError(t, pool.Close())
	assert.True(t, a.(*surfacetest.Provider).State().Closed)
	assert.Zero(t, pool.Len())

	// released after close
	require.NoError(t, pool.Release(b))
	assert.True(t, b.(*surfacetest.Provider).State().Closed)

	_, err := pool.Acquire(ctx)
	assert.ErrorIs(t, err, surface.ErrPoolClosed)
}
