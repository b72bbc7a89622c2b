package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/daybreaklabs/daybreak/pkg/types"
	"github.com/stretchr/testify/assert"
)

// TestJudge tests geofence pass/fail decisions
func TestJudge(t *testing.T) {
	target := types.GeoPoint{Lat: 35.0, Lng: 139.0}

	tests := []struct {
		name         string
		ping         *types.LocationPing
		radiusMeters float64
		wantPassed   bool
		wantInf      bool
	}{
		{
			name: "exact target coordinates",
			ping: &types.LocationPing{
				Lat: 35.0, Lng: 139.0,
				AccuracyMeters: 10, IsValid: true,
			},
			radiusMeters: 100,
			wantPassed:   true,
		},
		{
			name: "just inside the radius",
			ping: &types.LocationPing{
				Lat: 35.0005, Lng: 139.0, // ~55m north
				AccuracyMeters: 10, IsValid: true,
			},
			radiusMeters: 100,
			wantPassed:   true,
		},
		{
			name: "outside the radius",
			ping: &types.LocationPing{
				Lat: 35.01, Lng: 139.0, // ~1.1km north
				AccuracyMeters: 10, IsValid: true,
			},
			radiusMeters: 100,
			wantPassed:   false,
		},
		{
			name: "invalid ping flag never passes",
			ping: &types.LocationPing{
				Lat: 35.0, Lng: 139.0,
				AccuracyMeters: 10, IsValid: false,
			},
			radiusMeters: 100,
			wantPassed:   false,
			wantInf:      true,
		},
		{
			name: "negative accuracy never passes",
			ping: &types.LocationPing{
				Lat: 35.0, Lng: 139.0,
				AccuracyMeters: -1, IsValid: true,
			},
			radiusMeters: 100,
			wantPassed:   false,
			wantInf:      true,
		},
		{
			name: "missing accuracy never passes",
			ping: &types.LocationPing{
				Lat: 35.0, Lng: 139.0,
				IsValid: true,
			},
			radiusMeters: 100,
			wantPassed:   false,
			wantInf:      true,
		},
		{
			name:         "nil ping never passes",
			ping:         nil,
			radiusMeters: 100,
			wantPassed:   false,
			wantInf:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Judge(tt.ping, target, tt.radiusMeters)
			assert.Equal(t, tt.wantPassed, j.Passed)

			if tt.wantInf {
				assert.True(t, math.IsInf(j.DistanceMeters, 1))
			} else {
				// Distance is always returned for user feedback.
				assert.False(t, math.IsInf(j.DistanceMeters, 1))
				assert.GreaterOrEqual(t, j.DistanceMeters, 0.0)
			}
		})
	}
}

// TestJudgeExactCoordinatesZeroDistance verifies a ping at the target
// itself judges at distance zero.
func TestJudgeExactCoordinatesZeroDistance(t *testing.T) {
	target := types.GeoPoint{Lat: 35.0, Lng: 139.0}
	ping := &types.LocationPing{Lat: 35.0, Lng: 139.0, AccuracyMeters: 5, IsValid: true}

	j := Judge(ping, target, 100)
	assert.True(t, j.Passed)
	assert.Equal(t, 0.0, j.DistanceMeters)
}

// TestJudgmentJSONInfinity verifies the infinite distance of an
// unusable ping survives a JSON round trip as null.
func TestJudgmentJSONInfinity(t *testing.T) {
	j := Judge(nil, types.GeoPoint{Lat: 35.0, Lng: 139.0}, 100)

	data, err := json.Marshal(j)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"passed":false,"distance_meters":null}`, string(data))

	var back Judgment
	assert.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back.Passed)
	assert.True(t, math.IsInf(back.DistanceMeters, 1))
}

// TestHaversineMeters checks the distance formula against known
// reference distances.
func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.GeoPoint
		wantM     float64
		tolerance float64
	}{
		{
			name:  "same point",
			a:     types.GeoPoint{Lat: 35.0, Lng: 139.0},
			b:     types.GeoPoint{Lat: 35.0, Lng: 139.0},
			wantM: 0, tolerance: 0.001,
		},
		{
			name:  "one degree of latitude",
			a:     types.GeoPoint{Lat: 0, Lng: 0},
			b:     types.GeoPoint{Lat: 1, Lng: 0},
			wantM: 111195, tolerance: 200,
		},
		{
			name:  "tokyo station to shinjuku station",
			a:     types.GeoPoint{Lat: 35.6812, Lng: 139.7671},
			b:     types.GeoPoint{Lat: 35.6896, Lng: 139.7006},
			wantM: 6080, tolerance: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := HaversineMeters(tt.a, tt.b)
			assert.InDelta(t, tt.wantM, d, tt.tolerance)
		})
	}
}
