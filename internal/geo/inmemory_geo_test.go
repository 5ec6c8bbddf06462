package geo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryOrdersByDistanceAscending(t *testing.T) {
	ctx := context.Background()
	idx := NewInMemoryGeo()

	require.NoError(t, idx.Add(ctx, "d1", 19.0596, 72.8295, Meta{Tier: "STANDARD", Rating: 4.9}, 1))
	require.NoError(t, idx.Add(ctx, "d2", 19.0656, 72.8326, Meta{Tier: "STANDARD", Rating: 4.6}, 1))
	require.NoError(t, idx.Add(ctx, "d3", 19.30, 72.90, Meta{Tier: "STANDARD", Rating: 5.0}, 1))

	results, err := idx.Query(ctx, 19.0596, 72.8295, 50, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "d1", results[0].DriverID)
	require.Equal(t, 0.0, results[0].DistKM)
	require.True(t, results[0].DistKM <= results[1].DistKM)
	require.True(t, results[1].DistKM <= results[2].DistKM)
}

func TestQueryEmptyIndexNeverErrors(t *testing.T) {
	idx := NewInMemoryGeo()
	results, err := idx.Query(context.Background(), 0, 0, 10, 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestQueryRespectsRadius(t *testing.T) {
	ctx := context.Background()
	idx := NewInMemoryGeo()
	require.NoError(t, idx.Add(ctx, "near", 19.0596, 72.8295, Meta{}, 1))
	require.NoError(t, idx.Add(ctx, "far", 40.0, 70.0, Meta{}, 1))

	results, err := idx.Query(ctx, 19.0596, 72.8295, 5, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "near", results[0].DriverID)
}

func TestAddLastWriterWinsByTimestamp(t *testing.T) {
	ctx := context.Background()
	idx := NewInMemoryGeo()
	require.NoError(t, idx.Add(ctx, "d1", 10, 10, Meta{}, 5))
	require.NoError(t, idx.Add(ctx, "d1", 20, 20, Meta{}, 2)) // stale, should be ignored

	lat, lng, ok := idx.Position(ctx, "d1")
	require.True(t, ok)
	require.Equal(t, 10.0, lat)
	require.Equal(t, 10.0, lng)
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewInMemoryGeo()
	require.NoError(t, idx.Remove(ctx, "never-added"))
	require.NoError(t, idx.Add(ctx, "d1", 1, 1, Meta{}, 1))
	require.NoError(t, idx.Remove(ctx, "d1"))
	require.NoError(t, idx.Remove(ctx, "d1"))
	_, _, ok := idx.Position(ctx, "d1")
	require.False(t, ok)
}

func TestPruneOlderThan(t *testing.T) {
	ctx := context.Background()
	idx := NewInMemoryGeo()
	require.NoError(t, idx.Add(ctx, "d1", 1, 1, Meta{}, 1))
	idx.PruneOlderThan(time.Now().Add(time.Minute))
	_, _, ok := idx.Position(ctx, "d1")
	require.False(t, ok)
}

func TestDistanceTieBreaksByDriverID(t *testing.T) {
	ctx := context.Background()
	idx := NewInMemoryGeo()
	require.NoError(t, idx.Add(ctx, "zzz", 0, 0, Meta{}, 1))
	require.NoError(t, idx.Add(ctx, "aaa", 0, 0, Meta{}, 1))

	results, err := idx.Query(ctx, 0, 0, 1, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "aaa", results[0].DriverID)
}
