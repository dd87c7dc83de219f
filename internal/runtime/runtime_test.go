package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/crcalc/config"
)

func TestControllerAcquireRelease(t *testing.T) {
	limits := NewLimits(1, 1)
	controller := NewController(limits)

	require.Equal(t, limits, controller.LimitsSnapshot())

	require.NoError(t, controller.AcquireRequest(context.Background()))
	controller.ReleaseRequest()

	require.NoError(t, controller.AcquireDataset(context.Background()))
	controller.ReleaseDataset()
}

func TestControllerDatasetCapacity(t *testing.T) {
	controller := NewController(NewLimits(1, 1))
	require.NoError(t, controller.AcquireDataset(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, controller.AcquireDataset(ctx))

	controller.ReleaseDataset()
	require.NoError(t, controller.AcquireDataset(context.Background()))
	controller.ReleaseDataset()
}

func TestNewLimitsDefaults(t *testing.T) {
	limits := NewLimits(0, 0)
	require.Equal(t, config.DefaultMaxConcurrentRequests, limits.MaxConcurrentRequests)
	require.Equal(t, config.DefaultMaxOpenDatasets, limits.MaxOpenDatasets)

	require.Equal(t, config.DefaultRankPageSize, limits.PageSize(0))
	require.Equal(t, 7, limits.PageSize(7))
	require.Equal(t, config.MaxRankPageSize, limits.PageSize(10_000))
}
