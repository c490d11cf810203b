package api

import (
	"github.com/kiakiraki/location-sync/db"
)

// StatusResponse is the acknowledgement body of the generic write endpoint.
type StatusResponse struct {
	Status string `json:"status"`
}

// BatchRequest is the bulk import wrapper produced by the export tooling.
// A missing or non-array locations field is a malformed batch.
type BatchRequest struct {
	Locations *[]db.RawLocation `json:"locations"`
}

// LocationsResponse is the read-query body. Meta is present only when the
// query carried a spatial predicate.
type LocationsResponse struct {
	Count     int            `json:"count"`
	Locations []*db.Location `json:"locations"`
	Meta      *db.QueryMeta  `json:"meta,omitempty"`
}
