package db

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kiakiraki/location-sync/h3index"
)

const (
	DefaultQueryDays  = 7
	MaxQueryDays      = 365
	DefaultQueryLimit = 1000
	MaxQueryLimit     = 10000
)

// SpatialParams is the near_lat/near_lon/radius triple of a read request.
type SpatialParams struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
}

// LocationFilter collects the predicates of one range query. Build composes
// them into a single store query; out-of-range values are clamped to their
// documented bounds rather than rejected.
type LocationFilter struct {
	Days    int
	Limit   int
	Source  string
	After   string
	Before  string
	Spatial *SpatialParams
}

// QueryMeta describes how a spatial predicate was answered. It is attached
// to the response only when the query carried one.
type QueryMeta struct {
	QueryCenter    []float64 `json:"query_center"`
	RadiusKm       float64   `json:"radius_km"`
	ResolutionUsed int       `json:"resolution_used"`
	CellsSearched  int       `json:"cells_searched"`
}

func (f *LocationFilter) daysOrDefault() int {
	switch {
	case f.Days <= 0:
		return DefaultQueryDays
	case f.Days > MaxQueryDays:
		return MaxQueryDays
	}
	return f.Days
}

func (f *LocationFilter) limitOrDefault() int {
	switch {
	case f.Limit <= 0:
		return DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		return MaxQueryLimit
	}
	return f.Limit
}

// timeClause emits the recorded-timestamp range fragment. Explicit after or
// before bounds take precedence over the rolling days window; both are run
// through the timestamp normalizer, never compared as raw strings.
func (f *LocationFilter) timeClause(now time.Time) bson.M {
	bounds := bson.M{}
	if f.After != "" {
		if t, ok := ParseTimestamp(f.After); ok {
			bounds["$gte"] = t
		}
	}
	if f.Before != "" {
		if t, ok := ParseTimestamp(f.Before); ok {
			bounds["$lte"] = t
		}
	}
	if len(bounds) == 0 {
		bounds["$gte"] = now.Add(-time.Duration(f.daysOrDefault()) * 24 * time.Hour)
	}
	return bson.M{"recorded_at": bounds}
}

// sourceClause emits the exact source-tag fragment, or nil when unset.
func (f *LocationFilter) sourceClause() bson.M {
	if f.Source == "" {
		return nil
	}
	return bson.M{"source": f.Source}
}

// spatialClause translates the radius predicate into cell-set membership at
// the resolution the indexer's policy selects, or nil when unset.
func (f *LocationFilter) spatialClause(indexer *h3index.Indexer) (bson.M, *QueryMeta) {
	if f.Spatial == nil {
		return nil, nil
	}
	sq := indexer.RadiusQuery(f.Spatial.Lat, f.Spatial.Lon, f.Spatial.RadiusKm)
	field := "h3_res9"
	if sq.Resolution == h3index.ResCoarse {
		field = "h3_res7"
	}
	meta := &QueryMeta{
		QueryCenter:    []float64{sq.Lat, sq.Lon},
		RadiusKm:       sq.RadiusKm,
		ResolutionUsed: sq.Resolution,
		CellsSearched:  len(sq.Cells),
	}
	return bson.M{field: bson.M{"$in": sq.Cells}}, meta
}

// Build composes the clause list into one query document. QueryMeta is nil
// unless a spatial predicate was present.
func (f *LocationFilter) Build(indexer *h3index.Indexer, now time.Time) (bson.M, *QueryMeta) {
	clauses := []bson.M{f.timeClause(now)}
	if c := f.sourceClause(); c != nil {
		clauses = append(clauses, c)
	}
	spatial, meta := f.spatialClause(indexer)
	if spatial != nil {
		clauses = append(clauses, spatial)
	}

	if len(clauses) == 1 {
		return clauses[0], meta
	}
	return bson.M{"$and": clauses}, meta
}
