package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScheduleRoundTrip tests request encoding and response decoding
func TestScheduleRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/challenges", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ScheduleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1", req.UserRef)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(types.Challenge{
			ID:     "ch-1",
			Status: types.ChallengeStatusScheduled,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ch, err := c.Schedule(context.Background(), &ScheduleRequest{
		UserRef:        "user-1",
		CustomerRef:    "cus_1",
		StartAt:        time.Now().UTC(),
		EndAt:          time.Now().UTC().Add(time.Hour),
		TargetLocation: types.GeoPoint{Lat: 35.0, Lng: 139.0},
		PenaltyAmount:  500,
		Currency:       "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "ch-1", ch.ID)
	assert.Equal(t, types.ChallengeStatusScheduled, ch.Status)
}

// TestErrorEnvelopeDecoding verifies the API error body surfaces in
// the returned error.
func TestErrorEnvelopeDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "challenge not found"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "challenge not found")
}

// TestTriggerSweeps tests the cron trigger endpoints
func TestTriggerSweeps(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.TriggerExpirySweep(context.Background()))
	require.NoError(t, c.TriggerRetrySweep(context.Background()))
	assert.Equal(t, []string{"/v1/sweeps/expiry", "/v1/sweeps/retry"}, paths)
}
