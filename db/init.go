package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rs/zerolog/log"
)

// InitializeDatabase ensures the locations collection carries the indexes
// the read and backfill paths depend on.
func InitializeDatabase(db *Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		// Range scans are always ordered by recorded timestamp descending.
		{Keys: bson.D{{Key: "recorded_at", Value: -1}}},
		// Source filter combined with the time ordering.
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "recorded_at", Value: -1}}},
		// Spatial cell-set membership at both resolutions. The res7 index
		// also serves the backfill scan for rows with a null cell.
		{Keys: bson.D{{Key: "h3_res7", Value: 1}}},
		{Keys: bson.D{{Key: "h3_res9", Value: 1}}},
	}

	if _, err := db.LocationService.Collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error().Err(err).Msg("failed to create location indexes")
		return err
	}
	log.Info().Msg("location indexes initialized")
	return nil
}
