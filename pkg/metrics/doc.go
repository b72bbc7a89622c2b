/*
Package metrics provides Prometheus instrumentation for daybreak.

Collectors are package-level variables registered in init(), so any
package can instrument without wiring. Counters and histograms are
incremented at the call sites that own the event; gauges (challenge
counts per status, unresolved settlements) are owned exclusively by
the background Collector, which rebuilds them from the store every 15
seconds so they never drift from persisted truth.

# Key Metrics

	daybreak_challenges{status}              current challenges by status
	daybreak_transitions_total{from,to}      committed status transitions
	daybreak_transition_conflicts_total      lost conditional writes
	daybreak_charges_{created,succeeded,failed}_total
	daybreak_charge_retries_total
	daybreak_unresolved_settlements          challenges needing manual resolution
	daybreak_settlement_duration_seconds
	daybreak_{expiry,retry}_sweep_duration_seconds
	daybreak_api_requests_total{route,code}

Handler() returns the /metrics HTTP handler.
*/
package metrics
