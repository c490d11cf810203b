package api

import (
	"encoding/json"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kiakiraki/location-sync/db"
)

// RegisterLocationRoutes registers all location-related routes.
func (a *API) RegisterLocationRoutes(r chi.Router) {
	log.Info().Msg("register route POST /owntracks")
	r.Post("/owntracks", a.routerHandler(a.ownTracksHandler))

	log.Info().Msg("register route POST /locations")
	r.Post("/locations", a.routerHandler(a.createLocationHandler))

	log.Info().Msg("register route POST /locations/batch")
	r.Post("/locations/batch", a.routerHandler(a.batchImportHandler))

	log.Info().Msg("register route POST /locations/backfill-h3")
	r.Post("/locations/backfill-h3", a.routerHandler(a.backfillHandler))

	log.Info().Msg("register route GET /locations")
	r.Get("/locations", a.routerHandler(a.listLocationsHandler))

	log.Info().Msg("register route GET /locations/latest")
	r.Get("/locations/latest", a.routerHandler(a.latestLocationHandler))
}

// ownTracksHandler ingests one tracker push message. The protocol expects a
// JSON array in response to every accepted message, whatever its type, and
// the sender stops publishing otherwise: so opaque messages are acknowledged
// with the same empty list as persisted pings.
func (a *API) ownTracksHandler(r *Request) (interface{}, error) {
	var msg IngestMessage
	if err := json.Unmarshal(r.Data, &msg); err != nil {
		return nil, ErrInvalidJSON.WithErr(err)
	}

	variant, raw, err := normalizeMessage(&msg, time.Now())
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if _, err := a.database.LocationService.InsertLocation(r.Context.Request.Context(), raw); err != nil {
			return nil, ErrInternalServerError.WithErr(err)
		}
	} else if variant == VariantOpaque {
		log.Debug().Str("type", msg.Type).Msg("acknowledged opaque tracker message")
	}
	return []interface{}{}, nil
}

// createLocationHandler ingests one generic payload (or a tagged tracker
// message sent to the generic endpoint).
func (a *API) createLocationHandler(r *Request) (interface{}, error) {
	var msg IngestMessage
	if err := json.Unmarshal(r.Data, &msg); err != nil {
		return nil, ErrInvalidJSON.WithErr(err)
	}

	_, raw, err := normalizeMessage(&msg, time.Now())
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if _, err := a.database.LocationService.InsertLocation(r.Context.Request.Context(), raw); err != nil {
			return nil, ErrInternalServerError.WithErr(err)
		}
	}
	return &StatusResponse{Status: "ok"}, nil
}

// batchImportHandler ingests a bulk wrapper of records. Only a wrapper that
// is not shaped as a locations array is a hard rejection; page-level write
// failures are folded into the returned counters.
func (a *API) batchImportHandler(r *Request) (interface{}, error) {
	var body BatchRequest
	if err := json.Unmarshal(r.Data, &body); err != nil {
		return nil, ErrMalformedBatchInput.WithErr(err)
	}
	if body.Locations == nil {
		return nil, ErrMalformedBatchInput
	}

	result := a.database.LocationService.BulkImport(r.Context.Request.Context(), *body.Locations)
	return &result, nil
}

// backfillHandler runs one bounded backfill sweep over unindexed rows.
func (a *API) backfillHandler(r *Request) (interface{}, error) {
	result, err := a.database.LocationService.BackfillH3(r.Context.Request.Context())
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}
	return result, nil
}

// listLocationsHandler answers one time/source/space-filtered range query.
func (a *API) listLocationsHandler(r *Request) (interface{}, error) {
	filter, err := a.locationFilterFromQuery(r.Context)
	if err != nil {
		return nil, ErrInvalidQueryParam.WithErr(err)
	}

	locations, meta, err := a.database.LocationService.SearchLocations(r.Context.Request.Context(), filter)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}
	if locations == nil {
		locations = []*db.Location{}
	}
	return &LocationsResponse{
		Count:     len(locations),
		Locations: locations,
		Meta:      meta,
	}, nil
}

// latestLocationHandler returns the most recent record. An empty store is a
// distinct empty-result signal, not an internal error.
func (a *API) latestLocationHandler(r *Request) (interface{}, error) {
	loc, err := a.database.LocationService.LatestLocation(r.Context.Request.Context())
	if err == mongo.ErrNoDocuments {
		return nil, ErrNoLocations
	}
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}
	return loc, nil
}

// locationFilterFromQuery parses the read-query parameters. Range bounds are
// clamped inside the filter and the indexer; only non-numeric values are
// rejected here.
func (a *API) locationFilterFromQuery(hc *HTTPContext) (*db.LocationFilter, error) {
	days, err := hc.IntParam("days", 0)
	if err != nil {
		return nil, err
	}
	limit, err := hc.IntParam("limit", 0)
	if err != nil {
		return nil, err
	}
	filter := &db.LocationFilter{
		Days:   days,
		Limit:  limit,
		Source: hc.StringParam("source"),
		After:  hc.StringParam("after"),
		Before: hc.StringParam("before"),
	}

	nearLat, err := hc.FloatParam("near_lat")
	if err != nil {
		return nil, err
	}
	nearLon, err := hc.FloatParam("near_lon")
	if err != nil {
		return nil, err
	}
	if nearLat != nil && nearLon != nil {
		radius, err := hc.FloatParam("radius")
		if err != nil {
			return nil, err
		}
		radiusKm := 1.0
		if radius != nil {
			radiusKm = *radius
		}
		filter.Spatial = &db.SpatialParams{Lat: *nearLat, Lon: *nearLon, RadiusKm: radiusKm}
	}
	return filter, nil
}
