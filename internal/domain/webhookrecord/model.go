package webhookrecord

import (
	"time"

	"github.com/gepvi/gepvi-users/internal/types"
)

// Record is one received webhook delivery. Records are append-only and are
// never deduplicated: N deliveries produce N records. RawPayload holds the
// body exactly as received, which need not be valid UTF-8.
type Record struct {
	ID               int64                `db:"id" json:"id"`
	ReceivedAt       time.Time            `db:"received_at" json:"received_at"`
	ProviderName     string               `db:"provider_name" json:"provider_name"`
	EventType        string               `db:"event_type" json:"event_type"`
	RawPayload       []byte               `db:"raw_payload" json:"raw_payload"`
	Outcome          types.WebhookOutcome `db:"outcome" json:"outcome"`
	ResponseCode     int                  `db:"response_code" json:"response_code"`
	MatchedIntentID  *string              `db:"matched_intent_id" json:"matched_intent_id,omitempty"`
	GatewayPaymentID *string              `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	ErrorMessage     *string              `db:"error_message" json:"error_message,omitempty"`
	RequestID        string               `db:"request_id" json:"request_id"`
	RemoteAddr       string               `db:"remote_addr" json:"remote_addr"`
}
