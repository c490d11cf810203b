package h3index

import (
	"math"

	h3 "github.com/uber/h3-go/v4"
)

const (
	// ResCoarse and ResFine are the only two H3 resolutions the service
	// writes and queries. Res 7 cells average ~1.4 km per edge, res 9
	// cells ~0.2 km.
	ResCoarse = 7
	ResFine   = 9

	// avgEdgeKmRes7 and avgEdgeKmRes9 are the average hexagon edge
	// lengths in kilometers, used to translate a search radius into a
	// grid-disk ring count.
	avgEdgeKmRes7 = 1.406
	avgEdgeKmRes9 = 0.201

	// MinRadiusKm and MaxRadiusKm bound the radius accepted by
	// RadiusQuery. Values outside the range are clamped, not rejected.
	MinRadiusKm = 0.1
	MaxRadiusKm = 50.0

	// DefaultThresholdKm is the radius at or above which RadiusQuery
	// switches from res 9 to res 7 cells.
	DefaultThresholdKm = 2.0

	// DefaultMaxRings caps grid-disk fan-out. Radii that would need more
	// rings are under-covered at the far edge instead of issuing
	// unbounded queries.
	DefaultMaxRings = 10
)

// Indexer assigns H3 cells to coordinates and builds radius cell sets.
// The zero value is not usable; construct with New.
type Indexer struct {
	// ThresholdKm is the radius at which radius queries switch from the
	// fine to the coarse resolution.
	ThresholdKm float64
	// MaxRings caps the grid-disk ring count of a radius query.
	MaxRings int
}

// New returns an Indexer with the default resolution threshold and ring cap.
func New() *Indexer {
	return &Indexer{
		ThresholdKm: DefaultThresholdKm,
		MaxRings:    DefaultMaxRings,
	}
}

// SpatialQuery is the result of translating a center point and radius into
// a set of H3 cells at a single resolution. It lives only for the duration
// of one read request.
type SpatialQuery struct {
	Lat        float64
	Lon        float64
	RadiusKm   float64
	Resolution int
	Cells      []string
}

// IndexOf returns the H3 cell ids of a coordinate pair at resolutions 7 and
// 9. Both are nil when either coordinate is missing or not a finite number;
// otherwise both are set. The call is deterministic and has no side effects.
func (ix *Indexer) IndexOf(lat, lon *float64) (res7, res9 *string) {
	if lat == nil || lon == nil {
		return nil, nil
	}
	if !isFinite(*lat) || !isFinite(*lon) {
		return nil, nil
	}
	ll := h3.NewLatLng(*lat, *lon)
	c7 := h3.LatLngToCell(ll, ResCoarse).String()
	c9 := h3.LatLngToCell(ll, ResFine).String()
	return &c7, &c9
}

// RadiusQuery translates a center and radius into the H3 cells to match
// against. The radius is clamped to [MinRadiusKm, MaxRadiusKm]. The cell set
// is the grid disk of the center cell out to k rings, a superset of the true
// circle for any k within the ring cap.
func (ix *Indexer) RadiusQuery(lat, lon, radiusKm float64) *SpatialQuery {
	radiusKm = math.Min(math.Max(radiusKm, MinRadiusKm), MaxRadiusKm)

	resolution := ResFine
	edgeKm := avgEdgeKmRes9
	if radiusKm >= ix.ThresholdKm {
		resolution = ResCoarse
		edgeKm = avgEdgeKmRes7
	}

	k := int(math.Ceil(radiusKm / edgeKm))
	if k > ix.MaxRings {
		k = ix.MaxRings
	}

	center := h3.LatLngToCell(h3.NewLatLng(lat, lon), resolution)
	disk := h3.GridDisk(center, k)
	cells := make([]string, 0, len(disk))
	for _, c := range disk {
		cells = append(cells, c.String())
	}
	return &SpatialQuery{
		Lat:        lat,
		Lon:        lon,
		RadiusKm:   radiusKm,
		Resolution: resolution,
		Cells:      cells,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
