package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rs/zerolog/log"

	"github.com/kiakiraki/location-sync/h3index"
)

const (
	// PageSize is the number of records written per atomic batch call,
	// matching the store's per-call statement ceiling.
	PageSize = 100

	// BackfillSelectLimit caps how many unindexed rows one backfill
	// invocation selects. Progress across invocations is rederived by
	// re-scanning for null index cells; there is no persisted cursor.
	BackfillSelectLimit = 1000
)

// Location represents the schema for the "locations" collection. The index
// cells h3_res7 and h3_res9 are always written together: either both set or
// both null. Only the backfill path ever mutates a stored record, and only
// those two fields.
type Location struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp    string             `bson:"timestamp" json:"timestamp"`
	RecordedAt   time.Time          `bson:"recorded_at" json:"-"`
	Lat          float64            `bson:"lat" json:"lat"`
	Lon          float64            `bson:"lon" json:"lon"`
	Accuracy     *float64           `bson:"accuracy,omitempty" json:"accuracy,omitempty"`
	Source       string             `bson:"source" json:"source"`
	PlaceID      *string            `bson:"place_id,omitempty" json:"place_id,omitempty"`
	SemanticType *string            `bson:"semantic_type,omitempty" json:"semantic_type,omitempty"`
	ActivityType *string            `bson:"activity_type,omitempty" json:"activity_type,omitempty"`
	Altitude     *float64           `bson:"altitude,omitempty" json:"altitude,omitempty"`
	Speed        *float64           `bson:"speed,omitempty" json:"speed,omitempty"`
	H3Res7       *string            `bson:"h3_res7" json:"h3_res7"`
	H3Res9       *string            `bson:"h3_res9" json:"h3_res9"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// RawLocation is the canonical pre-persistence record shape shared by the
// generic ingest endpoint and the bulk import wrapper.
type RawLocation struct {
	Timestamp    string   `json:"timestamp"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Accuracy     *float64 `json:"accuracy"`
	Source       string   `json:"source"`
	PlaceID      *string  `json:"place_id"`
	SemanticType *string  `json:"semantic_type"`
	ActivityType *string  `json:"activity_type"`
	Altitude     *float64 `json:"altitude"`
	Speed        *float64 `json:"speed"`
}

// BatchResult is the aggregate accounting of one bulk import. Imported plus
// Errors always equals Total, whatever the input size.
type BatchResult struct {
	Imported int `json:"imported"`
	Errors   int `json:"errors"`
	Total    int `json:"total"`
}

// BackfillResult reports one bounded backfill sweep. Callers loop until
// Status is "complete".
type BackfillResult struct {
	Status    string `json:"status"`
	Updated   int    `json:"updated"`
	Remaining int    `json:"remaining"`
}

// LocationService provides methods to interact with the "locations"
// collection. Every write path computes the H3 cells through the same
// indexer before the record reaches the store.
type LocationService struct {
	Collection *mongo.Collection
	Indexer    *h3index.Indexer
}

// NewLocationService creates a new LocationService.
func NewLocationService(db *Database, indexer *h3index.Indexer) *LocationService {
	return &LocationService{
		Collection: db.Database.Collection("locations"),
		Indexer:    indexer,
	}
}

// document converts a raw record into its stored form: timestamp
// normalization, comparison-key derivation and H3 indexing happen here, in
// the same logical operation as the write that follows.
func (s *LocationService) document(raw *RawLocation, now time.Time) (*Location, error) {
	if raw.Lat == nil || raw.Lon == nil {
		return nil, fmt.Errorf("location requires lat and lon")
	}

	ts := raw.Timestamp
	if ts == "" {
		ts = now.UTC().Format(time.RFC3339)
	}
	ts = NormalizeTimestamp(ts)
	// Malformed timestamps keep a zero comparison key and sort last.
	recordedAt, _ := ParseTimestamp(ts)

	source := raw.Source
	if source == "" {
		source = "manual"
	}

	res7, res9 := s.Indexer.IndexOf(raw.Lat, raw.Lon)
	return &Location{
		Timestamp:    ts,
		RecordedAt:   recordedAt,
		Lat:          *raw.Lat,
		Lon:          *raw.Lon,
		Accuracy:     raw.Accuracy,
		Source:       source,
		PlaceID:      raw.PlaceID,
		SemanticType: raw.SemanticType,
		ActivityType: raw.ActivityType,
		Altitude:     raw.Altitude,
		Speed:        raw.Speed,
		H3Res7:       res7,
		H3Res9:       res9,
		CreatedAt:    now.UTC(),
	}, nil
}

// InsertLocation indexes and persists a single record.
func (s *LocationService) InsertLocation(ctx context.Context, raw *RawLocation) (*Location, error) {
	loc, err := s.document(raw, time.Now())
	if err != nil {
		return nil, err
	}
	result, err := s.Collection.InsertOne(ctx, loc)
	if err != nil {
		return nil, err
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		loc.ID = id
	}
	locationsPersisted.WithLabelValues(loc.Source).Inc()
	return loc, nil
}

// BulkImport pages an arbitrarily large record sequence into atomic writes
// of at most PageSize statements each. Failure granularity is the page: a
// rejected page counts its entire size toward Errors and processing moves
// on to the next page. Pages are issued strictly sequentially. Partial
// failure is reported through the counters, never as an error return.
func (s *LocationService) BulkImport(ctx context.Context, raws []RawLocation) BatchResult {
	result := BatchResult{Total: len(raws)}
	now := time.Now()

	for start := 0; start < len(raws); start += PageSize {
		end := start + PageSize
		if end > len(raws) {
			end = len(raws)
		}
		page := raws[start:end]

		models := make([]mongo.WriteModel, 0, len(page))
		pageErr := error(nil)
		for i := range page {
			loc, err := s.document(&page[i], now)
			if err != nil {
				pageErr = err
				break
			}
			models = append(models, mongo.NewInsertOneModel().SetDocument(loc))
		}
		if pageErr == nil {
			_, pageErr = s.Collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
		}
		if pageErr != nil {
			batchPagesFailed.Inc()
			result.Errors += len(page)
			log.Warn().Err(pageErr).
				Int("page_start", start).
				Int("page_size", len(page)).
				Msg("batch page failed")
			continue
		}
		result.Imported += len(page)
		locationsPersisted.WithLabelValues("batch").Add(float64(len(page)))
	}
	return result
}

// unindexedFilter matches rows the backfill still has to touch: no res-7
// cell yet (null and missing both qualify) but coordinates present.
func unindexedFilter() bson.M {
	return bson.M{
		"h3_res7": nil,
		"lat":     bson.M{"$type": "number"},
		"lon":     bson.M{"$type": "number"},
	}
}

// BackfillH3 retrofits H3 cells onto historical rows in one bounded sweep:
// select up to BackfillSelectLimit unindexed rows, rewrite both index cells
// in pages of PageSize, then re-count what is left. Re-running it over
// already-indexed rows is a no-op in effect, so concurrent sweeps may race
// harmlessly over the same selection.
func (s *LocationService) BackfillH3(ctx context.Context) (*BackfillResult, error) {
	cursor, err := s.Collection.Find(ctx, unindexedFilter(),
		options.Find().SetLimit(BackfillSelectLimit))
	if err != nil {
		return nil, err
	}
	var rows []Location
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return &BackfillResult{Status: "complete"}, nil
	}

	updated := 0
	for start := 0; start < len(rows); start += PageSize {
		end := start + PageSize
		if end > len(rows) {
			end = len(rows)
		}
		page := rows[start:end]

		models := make([]mongo.WriteModel, 0, len(page))
		for i := range page {
			lat, lon := page[i].Lat, page[i].Lon
			res7, res9 := s.Indexer.IndexOf(&lat, &lon)
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": page[i].ID}).
				SetUpdate(bson.M{"$set": bson.M{"h3_res7": res7, "h3_res9": res9}}))
		}
		if _, err := s.Collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			batchPagesFailed.Inc()
			log.Warn().Err(err).
				Int("page_start", start).
				Int("page_size", len(page)).
				Msg("backfill page failed")
			continue
		}
		updated += len(page)
	}
	backfillRowsUpdated.Add(float64(updated))

	remaining, err := s.Collection.CountDocuments(ctx, unindexedFilter())
	if err != nil {
		return nil, err
	}

	status := "complete"
	if remaining > 0 {
		status = "in_progress"
	}
	log.Info().Int("updated", updated).Int64("remaining", remaining).Msg("backfill sweep done")
	return &BackfillResult{Status: status, Updated: updated, Remaining: int(remaining)}, nil
}

// LatestLocation returns the most recent record by recorded timestamp.
// An empty store returns mongo.ErrNoDocuments, which callers treat as a
// distinct empty-result signal rather than a failure.
func (s *LocationService) LatestLocation(ctx context.Context) (*Location, error) {
	var loc Location
	err := s.Collection.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "recorded_at", Value: -1}})).Decode(&loc)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// SearchLocations runs one composed range query: time window, optional
// source match and optional spatial cell-set membership, ordered by recorded
// timestamp descending.
func (s *LocationService) SearchLocations(ctx context.Context, filter *LocationFilter) ([]*Location, *QueryMeta, error) {
	query, meta := filter.Build(s.Indexer, time.Now())

	cursor, err := s.Collection.Find(ctx, query,
		options.Find().
			SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
			SetLimit(int64(filter.limitOrDefault())))
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var locations []*Location
	for cursor.Next(ctx) {
		var loc Location
		if err := cursor.Decode(&loc); err != nil {
			return nil, nil, err
		}
		locations = append(locations, &loc)
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, err
	}
	return locations, meta, nil
}
