package geo

import (
	"encoding/json"
	"math"

	"github.com/daybreaklabs/daybreak/pkg/types"
)

// earthRadiusMeters is the mean Earth radius used by the haversine
// formula.
const earthRadiusMeters = 6371000.0

// Judgment is the outcome of a geofence check. DistanceMeters is
// always populated, even on failure, for user feedback.
type Judgment struct {
	Passed         bool    `json:"passed"`
	DistanceMeters float64 `json:"-"`
}

// MarshalJSON renders the infinite distance of an unusable ping as a
// null distance; encoding/json rejects IEEE infinities.
func (j Judgment) MarshalJSON() ([]byte, error) {
	type alias struct {
		Passed         bool     `json:"passed"`
		DistanceMeters *float64 `json:"distance_meters"`
	}
	a := alias{Passed: j.Passed}
	if !math.IsInf(j.DistanceMeters, 0) {
		a.DistanceMeters = &j.DistanceMeters
	}
	return json.Marshal(a)
}

// UnmarshalJSON mirrors MarshalJSON: a null distance reads back as
// infinity.
func (j *Judgment) UnmarshalJSON(data []byte) error {
	type alias struct {
		Passed         bool     `json:"passed"`
		DistanceMeters *float64 `json:"distance_meters"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	j.Passed = a.Passed
	if a.DistanceMeters != nil {
		j.DistanceMeters = *a.DistanceMeters
	} else {
		j.DistanceMeters = math.Inf(1)
	}
	return nil
}

// Judge decides whether a reported position lands inside the target
// geofence. An unreliable ping (invalid flag, missing or negative
// accuracy) is never an error: it fails the judgment with an infinite
// distance so an unusable position can never be scored a success.
func Judge(ping *types.LocationPing, target types.GeoPoint, radiusMeters float64) Judgment {
	if ping == nil || !ping.IsValid || ping.AccuracyMeters <= 0 {
		return Judgment{Passed: false, DistanceMeters: math.Inf(1)}
	}

	d := HaversineMeters(types.GeoPoint{Lat: ping.Lat, Lng: ping.Lng}, target)
	return Judgment{
		Passed:         d <= radiusMeters,
		DistanceMeters: d,
	}
}

// HaversineMeters computes the great-circle distance between two
// WGS84 coordinates.
func HaversineMeters(a, b types.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
