package test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/kiakiraki/location-sync/test/utils"
)

type locationJSON struct {
	ID           string   `json:"id"`
	Timestamp    string   `json:"timestamp"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	Source       string   `json:"source"`
	SemanticType *string  `json:"semantic_type"`
	ActivityType *string  `json:"activity_type"`
	Accuracy     *float64 `json:"accuracy"`
	H3Res7       *string  `json:"h3_res7"`
	H3Res9       *string  `json:"h3_res9"`
}

type listJSON struct {
	Count     int            `json:"count"`
	Locations []locationJSON `json:"locations"`
	Meta      *struct {
		QueryCenter    []float64 `json:"query_center"`
		RadiusKm       float64   `json:"radius_km"`
		ResolutionUsed int       `json:"resolution_used"`
		CellsSearched  int       `json:"cells_searched"`
	} `json:"meta"`
}

func TestOwnTracksLocationPing(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	tst := time.Now().Unix()
	body, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{
		"_type": "location",
		"lat":   35.0,
		"lon":   139.0,
		"tst":   tst,
		"acc":   10.0,
	}, "owntracks")
	c.Assert(code, qt.Equals, 200)
	// The tracker protocol requires an empty command list as ack.
	c.Assert(strings.TrimSpace(string(body)), qt.Equals, "[]")

	body, code = s.Request(http.MethodGet, utils.APIToken, nil, "locations", "latest")
	c.Assert(code, qt.Equals, 200)
	var latest locationJSON
	c.Assert(json.Unmarshal(body, &latest), qt.IsNil)
	c.Assert(latest.Source, qt.Equals, "owntracks")
	c.Assert(latest.Lat, qt.Equals, 35.0)
	c.Assert(latest.H3Res7, qt.IsNotNil)
	c.Assert(latest.H3Res9, qt.IsNotNil)

	// Exactly one record was persisted.
	body, code = s.Request(http.MethodGet, utils.APIToken, nil, "locations")
	c.Assert(code, qt.Equals, 200)
	var list listJSON
	c.Assert(json.Unmarshal(body, &list), qt.IsNil)
	c.Assert(list.Count, qt.Equals, 1)
	c.Assert(list.Meta, qt.IsNil)
}

func TestOwnTracksOpaqueMessage(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	body, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{"_type": "status"}, "owntracks")
	c.Assert(code, qt.Equals, 200)
	c.Assert(strings.TrimSpace(string(body)), qt.Equals, "[]")

	// Nothing was persisted: the latest query reports the distinct
	// empty-store signal.
	_, code = s.Request(http.MethodGet, utils.APIToken, nil, "locations", "latest")
	c.Assert(code, qt.Equals, 404)
}

func TestOwnTracksTransition(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	_, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{
		"_type": "transition",
		"lat":   35.0,
		"lon":   139.0,
		"tst":   time.Now().Unix(),
		"desc":  "office",
		"event": "enter",
	}, "owntracks")
	c.Assert(code, qt.Equals, 200)

	body, code := s.Request(http.MethodGet, utils.APIToken, nil, "locations", "latest")
	c.Assert(code, qt.Equals, 200)
	var latest locationJSON
	c.Assert(json.Unmarshal(body, &latest), qt.IsNil)
	c.Assert(latest.Source, qt.Equals, "owntracks:transition")
	c.Assert(*latest.SemanticType, qt.Equals, "office")
	c.Assert(*latest.ActivityType, qt.Equals, "enter")
}

func TestOwnTracksBasicAuth(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	_, code := s.RequestBasic(http.MethodPost, "phone", utils.APIToken, map[string]any{
		"_type": "location",
		"lat":   35.0,
		"lon":   139.0,
		"tst":   time.Now().Unix(),
	}, "owntracks")
	c.Assert(code, qt.Equals, 200)

	_, code = s.RequestBasic(http.MethodPost, "phone", "wrong-password", map[string]any{
		"_type": "location",
		"lat":   35.0,
		"lon":   139.0,
	}, "owntracks")
	c.Assert(code, qt.Equals, 401)
}

func TestAuthRequired(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	_, code := s.Request(http.MethodGet, "", nil, "locations")
	c.Assert(code, qt.Equals, 401)

	_, code = s.Request(http.MethodGet, "not-the-token", nil, "locations")
	c.Assert(code, qt.Equals, 401)
}

func TestGenericIngest(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	body, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{
		"timestamp":     time.Now().Format(time.RFC3339),
		"lat":           35.0,
		"lon":           139.0,
		"accuracy":      8.0,
		"source":        "google:timeline",
		"semantic_type": "INFERRED_HOME",
	}, "locations")
	c.Assert(code, qt.Equals, 200)
	c.Assert(strings.TrimSpace(string(body)), qt.Equals, `{"status":"ok"}`)

	body, code = s.Request(http.MethodGet, utils.APIToken, nil, "locations", "latest")
	c.Assert(code, qt.Equals, 200)
	var latest locationJSON
	c.Assert(json.Unmarshal(body, &latest), qt.IsNil)
	c.Assert(latest.Source, qt.Equals, "google:timeline")
	c.Assert(*latest.Accuracy, qt.Equals, 8.0)
}

func TestGenericIngestDefaultsToManual(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	_, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{
		"lat": 35.0,
		"lon": 139.0,
	}, "locations")
	c.Assert(code, qt.Equals, 200)

	body, code := s.Request(http.MethodGet, utils.APIToken, nil, "locations", "latest")
	c.Assert(code, qt.Equals, 200)
	var latest locationJSON
	c.Assert(json.Unmarshal(body, &latest), qt.IsNil)
	c.Assert(latest.Source, qt.Equals, "manual")
}

func TestInvalidPayloadRejected(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	_, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{}, "locations")
	c.Assert(code, qt.Equals, 400)

	_, code = s.Request(http.MethodPost, utils.APIToken, map[string]any{"lat": 35.0}, "locations")
	c.Assert(code, qt.Equals, 400)
}

func TestBatchImportAndSpatialQuery(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	locations := make([]map[string]any, 250)
	now := time.Now()
	for i := range locations {
		locations[i] = map[string]any{
			"timestamp": now.Add(-time.Duration(i) * time.Minute).Format(time.RFC3339),
			"lat":       35.0 + float64(i%10)*0.0001,
			"lon":       139.0 + float64(i%10)*0.0001,
			"source":    "google:timeline",
		}
	}
	body, code := s.Request(http.MethodPost, utils.APIToken,
		map[string]any{"locations": locations}, "locations", "batch")
	c.Assert(code, qt.Equals, 200)
	var result struct {
		Imported int `json:"imported"`
		Errors   int `json:"errors"`
		Total    int `json:"total"`
	}
	c.Assert(json.Unmarshal(body, &result), qt.IsNil)
	c.Assert(result.Total, qt.Equals, 250)
	c.Assert(result.Imported, qt.Equals, 250)
	c.Assert(result.Errors, qt.Equals, 0)

	body, code = s.RequestQuery(http.MethodGet, utils.APIToken, url.Values{
		"near_lat": {"35.0"},
		"near_lon": {"139.0"},
		"radius":   {"1"},
		"limit":    {"10000"},
	}, nil, "locations")
	c.Assert(code, qt.Equals, 200)
	var list listJSON
	c.Assert(json.Unmarshal(body, &list), qt.IsNil)
	c.Assert(list.Count, qt.Equals, 250)
	c.Assert(list.Meta, qt.IsNotNil)
	c.Assert(list.Meta.ResolutionUsed, qt.Equals, 9)
	c.Assert(list.Meta.RadiusKm, qt.Equals, 1.0)
	c.Assert(list.Meta.CellsSearched > 0, qt.IsTrue)
}

func TestBatchImportMalformedWrapper(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	_, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{"foo": "bar"}, "locations", "batch")
	c.Assert(code, qt.Equals, 400)

	_, code = s.Request(http.MethodPost, utils.APIToken, map[string]any{"locations": "nope"}, "locations", "batch")
	c.Assert(code, qt.Equals, 400)
}

func TestBackfillEndpoint(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	body, code := s.Request(http.MethodPost, utils.APIToken, map[string]any{}, "locations", "backfill-h3")
	c.Assert(code, qt.Equals, 200)
	var result struct {
		Status    string `json:"status"`
		Updated   int    `json:"updated"`
		Remaining int    `json:"remaining"`
	}
	c.Assert(json.Unmarshal(body, &result), qt.IsNil)
	c.Assert(result.Status, qt.Equals, "complete")
	c.Assert(result.Updated, qt.Equals, 0)
	c.Assert(result.Remaining, qt.Equals, 0)
}

func TestSourceFilterQuery(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	for _, source := range []string{"owntracks", "manual", "owntracks"} {
		payload := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"lat":       35.0,
			"lon":       139.0,
		}
		if source != "manual" {
			payload["source"] = source
		}
		_, code := s.Request(http.MethodPost, utils.APIToken, payload, "locations")
		c.Assert(code, qt.Equals, 200)
	}

	body, code := s.RequestQuery(http.MethodGet, utils.APIToken,
		url.Values{"source": {"owntracks"}}, nil, "locations")
	c.Assert(code, qt.Equals, 200)
	var list listJSON
	c.Assert(json.Unmarshal(body, &list), qt.IsNil)
	c.Assert(list.Count, qt.Equals, 2)
	for _, loc := range list.Locations {
		c.Assert(loc.Source, qt.Equals, "owntracks")
	}
}
