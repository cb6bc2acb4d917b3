package observability

const (
	MUsecaseRequests     = "usecase_requests_total"
	MUsecaseDuration     = "usecase_duration_seconds"
	MHTTPRequests        = "http_requests_total"
	MHTTPRequestDuration = "http_request_duration_seconds"

	// Event core metrics. Published counts envelopes written to the log,
	// delivered/failed count dispatch outcomes, recovery counts scanner passes.
	MEnvelopesPublished    = "event_envelopes_published_total"
	MEnvelopesDelivered    = "event_envelopes_delivered_total"
	MEnvelopeFailures      = "event_envelope_delivery_failures_total"
	MEnvelopeStateFailures = "event_envelope_state_update_failures_total"
	MRecoveryPasses        = "event_recovery_passes_total"
	MDeliveryDuration      = "event_delivery_duration_seconds"
)
