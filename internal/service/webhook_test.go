package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	"github.com/gepvi/gepvi-users/internal/testutil"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const month = 30 * 24 * time.Hour

type WebhookServiceSuite struct {
	testutil.BaseServiceTestSuite
	service WebhookService
}

func TestWebhookService(t *testing.T) {
	suite.Run(t, new(WebhookServiceSuite))
}

func (s *WebhookServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.rebuild()
}

// rebuild picks up configuration changes made by a test
func (s *WebhookServiceSuite) rebuild() {
	params := newTestParams(&s.BaseServiceTestSuite)
	s.service = NewWebhookService(params, NewAuditService(params))
}

func (s *WebhookServiceSuite) seedIntent(user *entitlement.Entitlement, gatewayPaymentID *string) *paymentintent.PaymentIntent {
	now := s.GetNow()
	intent := &paymentintent.PaymentIntent{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_INTENT),
		UserID:           user.UserID,
		PackageID:        "monthly",
		DurationDays:     30,
		Amount:           decimal.RequireFromString("249.00"),
		Currency:         "RUB",
		Description:      "GepCalories Premium - 1 месяц",
		ReturnURL:        "https://t.me/gepcalories_bot",
		Gateway:          types.PaymentGatewayYookassa,
		GatewayPaymentID: gatewayPaymentID,
		IdempotencyKey:   types.GenerateUUID(),
		Status:           types.PaymentIntentStatusPending,
		RequestedAt:      now,
		UpdatedAt:        now,
	}
	s.GetStores().PaymentIntentRepo.Put(intent)
	return intent
}

func succeeded(paymentID, intentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "notification",
		"event": "payment.succeeded",
		"object": {
			"id": %q,
			"status": "succeeded",
			"paid": true,
			"amount": {"value": "249.00", "currency": "RUB"},
			"metadata": {"intent_id": %q}
		}
	}`, paymentID, intentID))
}

func canceled(paymentID, intentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "notification",
		"event": "payment.canceled",
		"object": {
			"id": %q,
			"status": "canceled",
			"metadata": {"intent_id": %q},
			"cancellation_details": {"party": "yoo_money", "reason": "expired_on_confirmation"}
		}
	}`, paymentID, intentID))
}

func (s *WebhookServiceSuite) deliver(payload []byte) *WebhookResult {
	return s.service.HandleWebhook(s.GetContext(), &WebhookDelivery{
		ProviderName: "yookassa",
		Payload:      payload,
		Headers:      http.Header{},
		RemoteIP:     "185.71.76.5",
	})
}

func (s *WebhookServiceSuite) intent(id string) *paymentintent.PaymentIntent {
	p, err := s.GetStores().PaymentIntentRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return p
}

func (s *WebhookServiceSuite) user(id string) *entitlement.Entitlement {
	e, err := s.GetStores().EntitlementRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return e
}

func (s *WebhookServiceSuite) records() []*webhookrecord.Record {
	return s.GetStores().WebhookRecordRepo.All()
}

func (s *WebhookServiceSuite) TestSuccessExtendsSubscription() {
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))

	result := s.deliver(succeeded("pay_1", intent.ID))

	s.Equal(http.StatusOK, result.StatusCode)
	s.Equal(types.WebhookOutcomeApplied, result.Outcome)
	s.Equal(map[string]bool{"success": true}, result.Body)

	got := s.intent(intent.ID)
	s.Equal(types.PaymentIntentStatusConfirmed, got.Status)
	s.NotNil(got.ConfirmedAt)

	e := s.user(user.UserID)
	s.Require().NotNil(e.SubscriptionExpiresAt)
	s.WithinDuration(time.Now().Add(month), *e.SubscriptionExpiresAt, time.Minute)
	s.Equal(5, e.FreeQuotaRemaining)

	records := s.records()
	s.Require().Len(records, 1)
	s.Equal(types.WebhookOutcomeApplied, records[0].Outcome)
	s.Equal(http.StatusOK, records[0].ResponseCode)
	s.Equal("payment.succeeded", records[0].EventType)
	s.Equal(intent.ID, lo.FromPtr(records[0].MatchedIntentID))
	s.Equal("pay_1", lo.FromPtr(records[0].GatewayPaymentID))
	s.Equal("yookassa", records[0].ProviderName)
	s.Equal("185.71.76.5", records[0].RemoteAddr)
	s.NotEmpty(records[0].RequestID)
	s.Nil(records[0].ErrorMessage)
}

func (s *WebhookServiceSuite) TestSuccessStacksOnActiveSubscription() {
	user := s.CreateUser(nil)
	expiry := time.Now().UTC().Add(10 * 24 * time.Hour)
	user.SubscriptionExpiresAt = &expiry
	s.GetStores().EntitlementRepo.Put(user)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))

	result := s.deliver(succeeded("pay_1", intent.ID))
	s.Equal(types.WebhookOutcomeApplied, result.Outcome)

	e := s.user(user.UserID)
	s.True(expiry.Add(month).Equal(*e.SubscriptionExpiresAt))
}

func (s *WebhookServiceSuite) TestRedeliveryIsIdempotent() {
	const deliveries = 5
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))
	payload := succeeded("pay_1", intent.ID)

	first := s.deliver(payload)
	s.Equal(types.WebhookOutcomeApplied, first.Outcome)
	expiry := *s.user(user.UserID).SubscriptionExpiresAt

	for i := 1; i < deliveries; i++ {
		result := s.deliver(payload)
		s.Equal(http.StatusOK, result.StatusCode)
		s.Equal(types.WebhookOutcomeDuplicateIgnored, result.Outcome)
		s.Equal(map[string]bool{"success": true}, result.Body)
	}

	s.True(expiry.Equal(*s.user(user.UserID).SubscriptionExpiresAt))

	records := s.records()
	s.Require().Len(records, deliveries)
	outcomes := lo.CountValuesBy(records, func(r *webhookrecord.Record) types.WebhookOutcome { return r.Outcome })
	s.Equal(1, outcomes[types.WebhookOutcomeApplied])
	s.Equal(deliveries-1, outcomes[types.WebhookOutcomeDuplicateIgnored])
}

func (s *WebhookServiceSuite) TestConcurrentDuplicatesApplyOnce() {
	const deliveries = 10
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))
	payload := succeeded("pay_1", intent.ID)

	results := make([]*WebhookResult, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.deliver(payload)
		}(i)
	}
	wg.Wait()

	applied := lo.CountBy(results, func(r *WebhookResult) bool { return r.Outcome == types.WebhookOutcomeApplied })
	duplicates := lo.CountBy(results, func(r *WebhookResult) bool { return r.Outcome == types.WebhookOutcomeDuplicateIgnored })
	s.Equal(1, applied)
	s.Equal(deliveries-1, duplicates)

	e := s.user(user.UserID)
	s.WithinDuration(time.Now().Add(month), *e.SubscriptionExpiresAt, time.Minute)
	s.Len(s.records(), deliveries)
}

func (s *WebhookServiceSuite) TestConflictingTerminalEventsFirstWins() {
	s.Run("cancel then success", func() {
		user := s.CreateUser(nil)
		intent := s.seedIntent(user, lo.ToPtr("pay_c1"))

		first := s.deliver(canceled("pay_c1", intent.ID))
		s.Equal(http.StatusOK, first.StatusCode)
		s.Equal(types.WebhookOutcomeAppliedFailure, first.Outcome)

		second := s.deliver(succeeded("pay_c1", intent.ID))
		s.Equal(http.StatusOK, second.StatusCode)
		s.Equal(types.WebhookOutcomeDuplicateIgnored, second.Outcome)

		got := s.intent(intent.ID)
		s.Equal(types.PaymentIntentStatusFailed, got.Status)
		s.Equal("yoo_money: expired_on_confirmation", lo.FromPtr(got.FailureReason))
		s.Nil(s.user(user.UserID).SubscriptionExpiresAt)
	})

	s.Run("success then cancel", func() {
		user := s.CreateUser(nil)
		intent := s.seedIntent(user, lo.ToPtr("pay_c2"))

		s.Equal(types.WebhookOutcomeApplied, s.deliver(succeeded("pay_c2", intent.ID)).Outcome)
		s.Equal(types.WebhookOutcomeDuplicateIgnored, s.deliver(canceled("pay_c2", intent.ID)).Outcome)

		s.Equal(types.PaymentIntentStatusConfirmed, s.intent(intent.ID).Status)
		s.NotNil(s.user(user.UserID).SubscriptionExpiresAt)
	})
}

func (s *WebhookServiceSuite) TestUnknownIntentSettlesFromUnknownStatus() {
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, nil)
	intent.Status = types.PaymentIntentStatusUnknown
	s.GetStores().PaymentIntentRepo.Put(intent)

	result := s.deliver(succeeded("pay_late", intent.ID))
	s.Equal(types.WebhookOutcomeApplied, result.Outcome)
	s.Equal(types.PaymentIntentStatusConfirmed, s.intent(intent.ID).Status)
}

func (s *WebhookServiceSuite) TestMetadataFallbackLinksPayment() {
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, nil)

	result := s.deliver(succeeded("pay_lost", intent.ID))
	s.Equal(types.WebhookOutcomeApplied, result.Outcome)
	s.Equal(intent.ID, result.IntentID)

	got := s.intent(intent.ID)
	s.Equal("pay_lost", lo.FromPtr(got.GatewayPaymentID))

	// the redelivery now correlates by gateway id
	s.Equal(types.WebhookOutcomeDuplicateIgnored, s.deliver(succeeded("pay_lost", "")).Outcome)
}

func (s *WebhookServiceSuite) TestUnmatched() {
	user := s.CreateUser(nil)
	linked := s.seedIntent(user, lo.ToPtr("pay_mine"))

	tests := []struct {
		name    string
		payload []byte
	}{
		{"unknown payment without metadata", succeeded("pay_x", "")},
		{"unknown payment and unknown intent", succeeded("pay_x", "pi_missing")},
		{"intent linked to another payment", succeeded("pay_other", linked.ID)},
		{"cancel of unknown payment", canceled("pay_y", "")},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.GetStores().WebhookRecordRepo.Clear()

			result := s.deliver(tt.payload)
			s.Equal(http.StatusNotFound, result.StatusCode)
			s.Equal(types.WebhookOutcomeUnmatched, result.Outcome)

			records := s.records()
			s.Require().Len(records, 1)
			s.Equal(types.WebhookOutcomeUnmatched, records[0].Outcome)
			s.Equal(http.StatusNotFound, records[0].ResponseCode)
			s.NotNil(records[0].ErrorMessage)
		})
	}

	s.Equal(types.PaymentIntentStatusPending, s.intent(linked.ID).Status)
	s.Nil(s.user(user.UserID).SubscriptionExpiresAt)
}

func (s *WebhookServiceSuite) TestRejections() {
	tests := []struct {
		name     string
		provider string
		payload  string
		status   int
		outcome  types.WebhookOutcome
	}{
		{"not json", "yookassa", "not json", http.StatusBadRequest, types.WebhookOutcomeRejectedMalformed},
		{"wrong type", "yookassa", `{"type":"ping","event":"payment.succeeded","object":{"id":"p"}}`, http.StatusBadRequest, types.WebhookOutcomeRejectedMalformed},
		{"missing object id", "yookassa", `{"type":"notification","event":"payment.succeeded","object":{}}`, http.StatusBadRequest, types.WebhookOutcomeRejectedMalformed},
		{"unknown provider", "stripe", `{}`, http.StatusNotFound, types.WebhookOutcomeRejectedUnknownProvider},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.GetStores().WebhookRecordRepo.Clear()

			result := s.service.HandleWebhook(s.GetContext(), &WebhookDelivery{
				ProviderName: tt.provider,
				Payload:      []byte(tt.payload),
			})
			s.Equal(tt.status, result.StatusCode)
			s.Equal(tt.outcome, result.Outcome)

			records := s.records()
			s.Require().Len(records, 1)
			s.Equal(tt.outcome, records[0].Outcome)
			s.Equal([]byte(tt.payload), records[0].RawPayload)
			s.Equal(tt.provider, records[0].ProviderName)
		})
	}
}

func (s *WebhookServiceSuite) TestIgnoredEvent() {
	payload := []byte(`{"type":"notification","event":"payment.waiting_for_capture","object":{"id":"pay_w"}}`)

	result := s.deliver(payload)
	s.Equal(http.StatusOK, result.StatusCode)
	s.Equal(types.WebhookOutcomeIgnoredEvent, result.Outcome)

	records := s.records()
	s.Require().Len(records, 1)
	s.Equal("payment.waiting_for_capture", records[0].EventType)
}

func (s *WebhookServiceSuite) TestSignatureRequired() {
	cfg := s.GetConfig()
	cfg.Webhook.SigningSecret = testutil.WebhookSigningSecret
	defer func() { cfg.Webhook.SigningSecret = "" }()
	s.rebuild()

	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_s"))
	payload := succeeded("pay_s", intent.ID)

	unsigned := s.deliver(payload)
	s.Equal(http.StatusUnauthorized, unsigned.StatusCode)
	s.Equal(types.WebhookOutcomeRejectedSignature, unsigned.Outcome)
	s.Equal(types.PaymentIntentStatusPending, s.intent(intent.ID).Status)

	signed := s.service.HandleWebhook(s.GetContext(), &WebhookDelivery{
		ProviderName: "yookassa",
		Payload:      payload,
		Headers:      testutil.SignedHeaders(s.T(), testutil.WebhookSigningSecret, "msg_1", payload),
	})
	s.Equal(http.StatusOK, signed.StatusCode)
	s.Equal(types.WebhookOutcomeApplied, signed.Outcome)
	s.Len(s.records(), 2)
}

func (s *WebhookServiceSuite) TestSourceAllowlist() {
	cfg := s.GetConfig()
	cfg.Webhook.AllowedCIDRs = []string{"185.71.76.0/27"}
	defer func() { cfg.Webhook.AllowedCIDRs = nil }()
	s.rebuild()

	result := s.service.HandleWebhook(s.GetContext(), &WebhookDelivery{
		ProviderName: "yookassa",
		Payload:      succeeded("pay_1", ""),
		RemoteIP:     "10.0.0.1",
	})
	s.Equal(http.StatusUnauthorized, result.StatusCode)
	s.Equal(types.WebhookOutcomeRejectedSignature, result.Outcome)

	// allowed address gets through to correlation
	s.Equal(types.WebhookOutcomeUnmatched, s.deliver(succeeded("pay_1", "")).Outcome)
}

func (s *WebhookServiceSuite) TestStorageFailureAsksForRetry() {
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))
	payload := succeeded("pay_1", intent.ID)
	s.GetStores().EntitlementRepo.Faults().Fail("entitlement.extend_subscription", testutil.ErrStorageDown(), 1)

	result := s.deliver(payload)
	s.Equal(http.StatusServiceUnavailable, result.StatusCode)
	s.Equal(types.WebhookOutcomeRetryLater, result.Outcome)
	s.Nil(s.user(user.UserID).SubscriptionExpiresAt)

	// the real store rolls the transaction back; emulate that before the
	// provider redelivers
	reopened := s.intent(intent.ID)
	reopened.Status = types.PaymentIntentStatusPending
	reopened.ConfirmedAt = nil
	s.GetStores().PaymentIntentRepo.Put(reopened)

	retry := s.deliver(payload)
	s.Equal(http.StatusOK, retry.StatusCode)
	s.Equal(types.WebhookOutcomeApplied, retry.Outcome)
	s.NotNil(s.user(user.UserID).SubscriptionExpiresAt)

	records := s.records()
	s.Require().Len(records, 2)
	s.Equal(types.WebhookOutcomeRetryLater, records[0].Outcome)
	s.Equal(http.StatusServiceUnavailable, records[0].ResponseCode)
	s.Equal(types.WebhookOutcomeApplied, records[1].Outcome)
}

func (s *WebhookServiceSuite) TestLookupFailureAsksForRetry() {
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))
	s.GetStores().PaymentIntentRepo.Faults().Fail("payment_intent.get_by_gateway_payment_id", testutil.ErrStorageDown(), 1)

	result := s.deliver(succeeded("pay_1", intent.ID))
	s.Equal(http.StatusServiceUnavailable, result.StatusCode)
	s.Equal(types.WebhookOutcomeRetryLater, result.Outcome)
	s.Equal(types.PaymentIntentStatusPending, s.intent(intent.ID).Status)
}

func (s *WebhookServiceSuite) TestAuditFailureDoesNotChangeResult() {
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))
	s.GetStores().WebhookRecordRepo.Faults().Fail("webhook_record.append", testutil.ErrStorageDown(), 100)

	result := s.deliver(succeeded("pay_1", intent.ID))
	s.Equal(http.StatusOK, result.StatusCode)
	s.Equal(types.WebhookOutcomeApplied, result.Outcome)
	s.Empty(s.records())
	s.Equal(types.PaymentIntentStatusConfirmed, s.intent(intent.ID).Status)
}

func (s *WebhookServiceSuite) TestAmountMismatchStillApplies() {
	user := s.CreateUser(nil)
	intent := s.seedIntent(user, lo.ToPtr("pay_1"))
	payload := []byte(fmt.Sprintf(`{"type":"notification","event":"payment.succeeded",
		"object":{"id":"pay_1","status":"succeeded","amount":{"value":"1.00","currency":"RUB"},"metadata":{"intent_id":%q}}}`, intent.ID))

	result := s.deliver(payload)
	s.Equal(types.WebhookOutcomeApplied, result.Outcome)
}

func (s *WebhookServiceSuite) TestVerifyWithAPI() {
	cfg := s.GetConfig()
	cfg.Yookassa.VerifyWithAPI = true
	defer func() { cfg.Yookassa.VerifyWithAPI = false }()
	s.rebuild()

	tests := []struct {
		name     string
		response testutil.MockResponse
		status   int
		outcome  types.WebhookOutcome
	}{
		{
			name:     "gateway confirms",
			response: testutil.MockResponse{StatusCode: http.StatusOK, Body: []byte(`{"id":"pay_v","status":"succeeded","amount":{"value":"249.00","currency":"RUB"}}`)},
			status:   http.StatusOK,
			outcome:  types.WebhookOutcomeApplied,
		},
		{
			name:     "gateway disagrees",
			response: testutil.MockResponse{StatusCode: http.StatusOK, Body: []byte(`{"id":"pay_v","status":"canceled","amount":{"value":"249.00","currency":"RUB"}}`)},
			status:   http.StatusUnauthorized,
			outcome:  types.WebhookOutcomeRejectedSignature,
		},
		{
			name:     "gateway down",
			response: testutil.MockResponse{Err: context.DeadlineExceeded},
			status:   http.StatusServiceUnavailable,
			outcome:  types.WebhookOutcomeRetryLater,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.ClearStores()
			user := s.CreateUser(nil)
			intent := s.seedIntent(user, lo.ToPtr("pay_v"))
			s.GetHTTPClient().RegisterResponse(http.MethodGet, "/payments/pay_v", tt.response)

			result := s.deliver(succeeded("pay_v", intent.ID))
			s.Equal(tt.status, result.StatusCode)
			s.Equal(tt.outcome, result.Outcome)
		})
	}
}

func (s *WebhookServiceSuite) TestVerifyWithAPIChecksCancellations() {
	cfg := s.GetConfig()
	cfg.Yookassa.VerifyWithAPI = true
	defer func() { cfg.Yookassa.VerifyWithAPI = false }()
	s.rebuild()

	tests := []struct {
		name    string
		status  string
		code    int
		outcome types.WebhookOutcome
		intent  types.PaymentIntentStatus
	}{
		{"gateway confirms cancellation", "canceled", http.StatusOK, types.WebhookOutcomeAppliedFailure, types.PaymentIntentStatusFailed},
		{"payment is still open", "pending", http.StatusUnauthorized, types.WebhookOutcomeRejectedSignature, types.PaymentIntentStatusPending},
		{"payment actually succeeded", "succeeded", http.StatusUnauthorized, types.WebhookOutcomeRejectedSignature, types.PaymentIntentStatusPending},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.ClearStores()
			user := s.CreateUser(nil)
			intent := s.seedIntent(user, lo.ToPtr("pay_c"))
			s.GetHTTPClient().RegisterResponse(http.MethodGet, "/payments/pay_c", testutil.MockResponse{
				StatusCode: http.StatusOK,
				Body:       []byte(fmt.Sprintf(`{"id":"pay_c","status":%q,"amount":{"value":"249.00","currency":"RUB"}}`, tt.status)),
			})

			result := s.deliver(canceled("pay_c", intent.ID))
			s.Equal(tt.code, result.StatusCode)
			s.Equal(tt.outcome, result.Outcome)
			s.Equal(tt.intent, s.intent(intent.ID).Status)
		})
	}
}

func (s *WebhookServiceSuite) TestBinaryBodyIsAuditedVerbatim() {
	payload := []byte("\xff\x00\xfe{\"type\":")

	result := s.deliver(payload)
	s.Equal(http.StatusBadRequest, result.StatusCode)
	s.Equal(types.WebhookOutcomeRejectedMalformed, result.Outcome)

	records := s.records()
	s.Require().Len(records, 1)
	s.Equal(payload, records[0].RawPayload)
	s.Equal(types.WebhookOutcomeRejectedMalformed, records[0].Outcome)
}

func (s *WebhookServiceSuite) TestMissingBodyIsAuditedAsEmpty() {
	result := s.deliver(nil)
	s.Equal(types.WebhookOutcomeRejectedMalformed, result.Outcome)

	records := s.records()
	s.Require().Len(records, 1)
	s.NotNil(records[0].RawPayload)
	s.Empty(records[0].RawPayload)
}
