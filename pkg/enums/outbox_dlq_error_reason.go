package enums

// OutboxDLQErrorReason explains why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts      OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable     OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
	OutboxDLQReasonMaxRedeliveries  OutboxDLQErrorReason = "max_redeliveries"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonMalformedPayload,
	OutboxDLQReasonMaxRedeliveries,
}

// IsValid reports whether the value is a known OutboxDLQErrorReason.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
