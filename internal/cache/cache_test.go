package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersnlabs/navcore/internal/lib/route/routetest"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, c.Set("k", payload{Name: "a", Count: 3}, time.Minute, "test"))

	var got payload
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 3}, got)
}

func TestCache_ExpiredEntryIsStale(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", "v", -time.Second, "test"))

	assert.True(t, c.IsStale("k"))

	var got string
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	// Metadata is still reachable for stale-tolerant callers
	entry, exists, err := c.GetWithMetadata("k", &got)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "v", got)
	assert.Equal(t, "test", entry.Source)
}

func TestCache_CleanupStale(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("fresh", 1, time.Minute, "test"))
	require.NoError(t, c.Set("stale", 2, -time.Second, "test"))

	removed := c.CleanupStale()
	assert.Equal(t, 1, removed)
	assert.ElementsMatch(t, []string{"fresh"}, c.Keys())

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.FreshEntries)
}

func TestCache_RouteRoundTrip(t *testing.T) {
	c := New()
	r := routetest.StraightRoute(1, 3, 5)

	require.NoError(t, c.SetRoute(r, time.Minute))

	got, found, err := c.GetRoute(r.Origin, r.Destination)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, len(r.Legs), len(got.Legs))
	assert.InDelta(t, r.Distance, got.Distance, 0.001)

	// A different pair misses
	other := routetest.OffsetEast(r.Destination, 500)
	_, found, err = c.GetRoute(r.Origin, other)
	require.NoError(t, err)
	assert.False(t, found)
}
