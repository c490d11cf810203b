package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kiakiraki/location-sync/h3index"
)

func TestFilterDefaultsAndClamps(t *testing.T) {
	f := &LocationFilter{}
	assert.Equal(t, DefaultQueryDays, f.daysOrDefault())
	assert.Equal(t, DefaultQueryLimit, f.limitOrDefault())

	f = &LocationFilter{Days: 9999, Limit: 999999}
	assert.Equal(t, MaxQueryDays, f.daysOrDefault())
	assert.Equal(t, MaxQueryLimit, f.limitOrDefault())

	f = &LocationFilter{Days: 30, Limit: 50}
	assert.Equal(t, 30, f.daysOrDefault())
	assert.Equal(t, 50, f.limitOrDefault())
}

func TestBuildTimeWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ix := h3index.New()

	query, meta := (&LocationFilter{}).Build(ix, now)
	assert.Nil(t, meta)
	bounds, ok := query["recorded_at"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, now.Add(-7*24*time.Hour), bounds["$gte"])

	// Explicit bounds go through the normalizer, so a compact offset and a
	// colon offset produce the same window.
	query, _ = (&LocationFilter{
		After:  "2024-01-01T12:00:00+0900",
		Before: "2024-02-01T12:00:00+09:00",
	}).Build(ix, now)
	bounds = query["recorded_at"].(bson.M)
	after := bounds["$gte"].(time.Time)
	before := bounds["$lte"].(time.Time)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC).Unix(), after.Unix())
	assert.Equal(t, time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC).Unix(), before.Unix())
}

func TestBuildSourceClause(t *testing.T) {
	now := time.Now()
	ix := h3index.New()

	query, _ := (&LocationFilter{Source: "owntracks"}).Build(ix, now)
	clauses, ok := query["$and"].([]bson.M)
	require.True(t, ok)
	require.Len(t, clauses, 2)
	assert.Equal(t, bson.M{"source": "owntracks"}, clauses[1])
}

func TestBuildSpatialClause(t *testing.T) {
	now := time.Now()
	ix := h3index.New()

	query, meta := (&LocationFilter{
		Spatial: &SpatialParams{Lat: 35.0, Lon: 139.0, RadiusKm: 5},
	}).Build(ix, now)
	require.NotNil(t, meta)
	assert.Equal(t, []float64{35.0, 139.0}, meta.QueryCenter)
	assert.Equal(t, 5.0, meta.RadiusKm)
	assert.Equal(t, h3index.ResCoarse, meta.ResolutionUsed)
	assert.Greater(t, meta.CellsSearched, 0)

	clauses := query["$and"].([]bson.M)
	require.Len(t, clauses, 2)
	cellClause, ok := clauses[1]["h3_res7"].(bson.M)
	require.True(t, ok)
	assert.Len(t, cellClause["$in"].([]string), meta.CellsSearched)
}

func TestBuildSpatialClauseFineResolution(t *testing.T) {
	query, meta := (&LocationFilter{
		Spatial: &SpatialParams{Lat: 35.0, Lon: 139.0, RadiusKm: 1},
	}).Build(h3index.New(), time.Now())
	require.NotNil(t, meta)
	assert.Equal(t, h3index.ResFine, meta.ResolutionUsed)

	clauses := query["$and"].([]bson.M)
	_, hasFine := clauses[1]["h3_res9"]
	assert.True(t, hasFine)
}
