package dto

import (
	"encoding/base64"
	"testing"

	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestWebhookRecordResponsePayload(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		wantText   string
		wantBase64 string
	}{
		{
			name:     "json body",
			payload:  []byte(`{"type":"notification"}`),
			wantText: `{"type":"notification"}`,
		},
		{
			name:     "empty body",
			payload:  []byte{},
			wantText: "",
		},
		{
			name:       "binary body",
			payload:    []byte("\xff\x00abc"),
			wantBase64: base64.StdEncoding.EncodeToString([]byte("\xff\x00abc")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewWebhookRecordResponse(&webhookrecord.Record{
				ProviderName: "yookassa",
				RawPayload:   tt.payload,
				Outcome:      types.WebhookOutcomeRejectedMalformed,
				ResponseCode: 400,
			})
			assert.Equal(t, tt.wantText, resp.RawPayload)
			assert.Equal(t, tt.wantBase64, resp.RawPayloadBase64)
		})
	}
}
