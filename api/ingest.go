package api

import (
	"time"

	"github.com/kiakiraki/location-sync/db"
)

// IngestMessage is the union of everything the ingest endpoints may receive:
// tracker push messages carry a `_type` tag and short field names, generic
// clients send the canonical record shape with no tag.
type IngestMessage struct {
	Type string `json:"_type,omitempty"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	// Tracker protocol fields.
	Tst   *int64   `json:"tst,omitempty"`
	Acc   *float64 `json:"acc,omitempty"`
	Alt   *float64 `json:"alt,omitempty"`
	Vel   *float64 `json:"vel,omitempty"`
	Rad   *float64 `json:"rad,omitempty"`
	Desc  *string  `json:"desc,omitempty"`
	Event *string  `json:"event,omitempty"`

	// Generic payload fields.
	Timestamp    string   `json:"timestamp,omitempty"`
	Accuracy     *float64 `json:"accuracy,omitempty"`
	Source       string   `json:"source,omitempty"`
	PlaceID      *string  `json:"place_id,omitempty"`
	SemanticType *string  `json:"semantic_type,omitempty"`
	ActivityType *string  `json:"activity_type,omitempty"`
	Altitude     *float64 `json:"altitude,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
}

// MessageVariant enumerates the closed set of recognized message shapes.
type MessageVariant int

const (
	// VariantPositionPing is a tracker location ping (`_type: location`).
	VariantPositionPing MessageVariant = iota
	// VariantWaypoint is a tracker waypoint definition (`_type: waypoint`).
	VariantWaypoint
	// VariantTransition is a tracker region transition (`_type: transition`).
	VariantTransition
	// VariantOpaque is any other tagged tracker message. It is acknowledged
	// and never persisted: the protocol requires a success response to keep
	// the sender operating.
	VariantOpaque
	// VariantGeneric is an untagged payload carrying coordinates.
	VariantGeneric
	// VariantInvalid is an untagged payload without coordinates.
	VariantInvalid
)

// classifyMessage maps a message onto its variant. The dispatch is an
// exhaustive match over the tag, so an unrecognized tag can never fall
// through into a persisting branch.
func classifyMessage(m *IngestMessage) MessageVariant {
	switch m.Type {
	case "location":
		return VariantPositionPing
	case "waypoint":
		return VariantWaypoint
	case "transition":
		return VariantTransition
	case "":
		if m.Lat != nil && m.Lon != nil {
			return VariantGeneric
		}
		return VariantInvalid
	default:
		return VariantOpaque
	}
}

// trackerTimestamp renders the tracker epoch-seconds field, falling back to
// the receipt time when the sender omitted it.
func trackerTimestamp(tst *int64, now time.Time) string {
	if tst != nil {
		return time.Unix(*tst, 0).UTC().Format(time.RFC3339)
	}
	return now.UTC().Format(time.RFC3339)
}

// normalizeMessage maps a recognized message variant into the canonical
// record shape. A nil record with a nil error means the message is
// acknowledged without persistence. At most one record results from any
// accepted message.
func normalizeMessage(m *IngestMessage, now time.Time) (MessageVariant, *db.RawLocation, error) {
	variant := classifyMessage(m)

	switch variant {
	case VariantPositionPing:
		if m.Lat == nil || m.Lon == nil {
			return variant, nil, ErrInvalidPayload
		}
		return variant, &db.RawLocation{
			Timestamp: trackerTimestamp(m.Tst, now),
			Lat:       m.Lat,
			Lon:       m.Lon,
			Accuracy:  m.Acc,
			Source:    "owntracks",
			Altitude:  m.Alt,
			Speed:     m.Vel,
		}, nil

	case VariantWaypoint:
		if m.Lat == nil || m.Lon == nil {
			return variant, nil, ErrInvalidPayload
		}
		return variant, &db.RawLocation{
			Timestamp:    trackerTimestamp(m.Tst, now),
			Lat:          m.Lat,
			Lon:          m.Lon,
			Accuracy:     m.Rad,
			Source:       "owntracks:waypoint",
			SemanticType: m.Desc,
		}, nil

	case VariantTransition:
		if m.Lat == nil || m.Lon == nil {
			return variant, nil, ErrInvalidPayload
		}
		return variant, &db.RawLocation{
			Timestamp:    trackerTimestamp(m.Tst, now),
			Lat:          m.Lat,
			Lon:          m.Lon,
			Accuracy:     m.Acc,
			Source:       "owntracks:transition",
			SemanticType: m.Desc,
			ActivityType: m.Event,
		}, nil

	case VariantOpaque:
		return variant, nil, nil

	case VariantGeneric:
		return variant, &db.RawLocation{
			Timestamp:    m.Timestamp,
			Lat:          m.Lat,
			Lon:          m.Lon,
			Accuracy:     m.Accuracy,
			Source:       m.Source,
			PlaceID:      m.PlaceID,
			SemanticType: m.SemanticType,
			ActivityType: m.ActivityType,
			Altitude:     m.Altitude,
			Speed:        m.Speed,
		}, nil

	default:
		return VariantInvalid, nil, ErrInvalidPayload
	}
}
