package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/engine"
	"github.com/daybreaklabs/daybreak/pkg/types"
)

// Client talks to a daybreak API server. It mirrors the engine's
// exposed operations one-to-one.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ScheduleRequest is the payload for scheduling a challenge.
type ScheduleRequest struct {
	UserRef            string         `json:"user_ref"`
	CustomerRef        string         `json:"customer_ref"`
	StartAt            time.Time      `json:"start_at"`
	EndAt              time.Time      `json:"end_at"`
	HomeLocation       types.GeoPoint `json:"home_location"`
	TargetLocation     types.GeoPoint `json:"target_location"`
	TargetRadiusMeters float64        `json:"target_radius_meters,omitempty"`
	PenaltyAmount      int64          `json:"penalty_amount"`
	Currency           string         `json:"currency"`
}

// Schedule creates a new challenge.
func (c *Client) Schedule(ctx context.Context, req *ScheduleRequest) (*types.Challenge, error) {
	var ch types.Challenge
	if err := c.do(ctx, http.MethodPost, "/v1/challenges", req, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ArrivalRequest is the payload for an arrival claim.
type ArrivalRequest struct {
	Lat            float64          `json:"lat"`
	Lng            float64          `json:"lng"`
	AccuracyMeters float64          `json:"accuracy_meters"`
	ObservedAt     time.Time        `json:"observed_at"`
	Source         types.PingSource `json:"source,omitempty"`
	ClientTime     *time.Time       `json:"client_time,omitempty"`
}

// ArrivalResponse wraps the engine outcome with diagnostics.
type ArrivalResponse struct {
	Outcome         *engine.Outcome `json:"outcome"`
	SettlementError string          `json:"settlement_error,omitempty"`
	ClockSkewMs     *int64          `json:"clock_skew_ms,omitempty"`
}

// RecordArrival submits an arrival claim for a challenge.
func (c *Client) RecordArrival(ctx context.Context, challengeID string, req *ArrivalRequest) (*ArrivalResponse, error) {
	var resp ArrivalResponse
	if err := c.do(ctx, http.MethodPost, "/v1/challenges/"+challengeID+"/arrival", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatus fetches a challenge's current outcome.
func (c *Client) GetStatus(ctx context.Context, challengeID string) (*engine.Outcome, error) {
	var out engine.Outcome
	if err := c.do(ctx, http.MethodGet, "/v1/challenges/"+challengeID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryAttempt triggers a manual settlement retry.
func (c *Client) RetryAttempt(ctx context.Context, attemptID string) (*types.PaymentAttempt, error) {
	var resp struct {
		Attempt *types.PaymentAttempt `json:"attempt"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/attempts/"+attemptID+"/retry", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attempt, nil
}

// TriggerExpirySweep runs one expiry reconciliation cycle.
func (c *Client) TriggerExpirySweep(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/sweeps/expiry", nil, nil)
}

// TriggerRetrySweep runs one settlement retry cycle.
func (c *Client) TriggerRetrySweep(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/sweeps/retry", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
