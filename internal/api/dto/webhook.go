package dto

import (
	"encoding/base64"
	"time"
	"unicode/utf8"

	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	"github.com/gepvi/gepvi-users/internal/types"
)

// WebhookRecordResponse is an audit record as shown to operators
type WebhookRecordResponse struct {
	ID               int64                `json:"id"`
	ReceivedAt       time.Time            `json:"received_at"`
	ProviderName     string               `json:"provider_name"`
	EventType        string               `json:"event_type"`
	Outcome          types.WebhookOutcome `json:"outcome"`
	ResponseCode     int                  `json:"response_code"`
	MatchedIntentID  *string              `json:"matched_intent_id,omitempty"`
	GatewayPaymentID *string              `json:"gateway_payment_id,omitempty"`
	ErrorMessage     *string              `json:"error_message,omitempty"`
	RequestID        string               `json:"request_id"`
	RemoteAddr       string               `json:"remote_addr"`
	RawPayload       string               `json:"raw_payload"`
	// Set instead of RawPayload when the body is not valid UTF-8
	RawPayloadBase64 string `json:"raw_payload_base64,omitempty"`
}

func NewWebhookRecordResponse(r *webhookrecord.Record) WebhookRecordResponse {
	resp := WebhookRecordResponse{
		ID:               r.ID,
		ReceivedAt:       r.ReceivedAt,
		ProviderName:     r.ProviderName,
		EventType:        r.EventType,
		Outcome:          r.Outcome,
		ResponseCode:     r.ResponseCode,
		MatchedIntentID:  r.MatchedIntentID,
		GatewayPaymentID: r.GatewayPaymentID,
		ErrorMessage:     r.ErrorMessage,
		RequestID:        r.RequestID,
		RemoteAddr:       r.RemoteAddr,
	}
	if utf8.Valid(r.RawPayload) {
		resp.RawPayload = string(r.RawPayload)
	} else {
		resp.RawPayloadBase64 = base64.StdEncoding.EncodeToString(r.RawPayload)
	}
	return resp
}
