package types

import (
	"fmt"

	"github.com/samber/lo"
)

// WebhookOutcome labels how a single webhook delivery was handled
type WebhookOutcome string

const (
	WebhookOutcomeApplied                 WebhookOutcome = "applied"
	WebhookOutcomeAppliedFailure          WebhookOutcome = "applied_failure"
	WebhookOutcomeDuplicateIgnored        WebhookOutcome = "duplicate_ignored"
	WebhookOutcomeIgnoredEvent            WebhookOutcome = "ignored_event"
	WebhookOutcomeUnmatched               WebhookOutcome = "unmatched"
	WebhookOutcomeRejectedMalformed       WebhookOutcome = "rejected_malformed"
	WebhookOutcomeRejectedSignature       WebhookOutcome = "rejected_signature"
	WebhookOutcomeRejectedUnknownProvider WebhookOutcome = "rejected_unknown_provider"
	WebhookOutcomeRetryLater              WebhookOutcome = "retry_later"
)

func (o WebhookOutcome) String() string {
	return string(o)
}

func (o WebhookOutcome) Validate() error {
	allowed := []WebhookOutcome{
		WebhookOutcomeApplied,
		WebhookOutcomeAppliedFailure,
		WebhookOutcomeDuplicateIgnored,
		WebhookOutcomeIgnoredEvent,
		WebhookOutcomeUnmatched,
		WebhookOutcomeRejectedMalformed,
		WebhookOutcomeRejectedSignature,
		WebhookOutcomeRejectedUnknownProvider,
		WebhookOutcomeRetryLater,
	}
	if !lo.Contains(allowed, o) {
		return fmt.Errorf("invalid webhook outcome: %s", o)
	}
	return nil
}

// WebhookEventType is the gateway's event name
type WebhookEventType string

const (
	WebhookEventPaymentSucceeded         WebhookEventType = "payment.succeeded"
	WebhookEventPaymentCanceled          WebhookEventType = "payment.canceled"
	WebhookEventPaymentWaitingForCapture WebhookEventType = "payment.waiting_for_capture"
	WebhookEventRefundSucceeded          WebhookEventType = "refund.succeeded"
)

func (e WebhookEventType) String() string {
	return string(e)
}
