/*
Package api exposes the engine's operations over HTTP.

The server is a thin gin layer: request parsing, the error-taxonomy to
status-code mapping, and a websocket event stream. All semantics live
in the engine; any RPC shape could replace this package without
touching a contract.

# Routes

	GET  /healthz                      liveness
	GET  /metrics                      Prometheus metrics
	POST /v1/challenges                schedule a challenge
	GET  /v1/challenges/:id            read the recorded outcome
	POST /v1/challenges/:id/arrival    judge an arrival claim
	POST /v1/attempts/:id/retry        manual settlement retry
	POST /v1/sweeps/expiry             external cron trigger
	POST /v1/sweeps/retry              external cron trigger
	GET  /v1/events                    websocket lifecycle events

# Status Mapping

	ValidationError            400
	storage.ErrNotFound        404
	storage.ErrStatusConflict  409
	TransientError             503 (retryable: true)
	anything else              500

An arrival on an already-resolved challenge is a 200 with
already_resolved set in the outcome; idempotent repeats are success,
not conflict.
*/
package api
