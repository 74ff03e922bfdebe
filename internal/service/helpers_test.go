package service

import (
	"github.com/gepvi/gepvi-users/internal/testutil"
)

func newTestParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		DB:                s.GetDB(),
		Sentry:            s.GetSentry(),
		Catalog:           s.GetCatalog(),
		EntitlementRepo:   stores.EntitlementRepo,
		PaymentIntentRepo: stores.PaymentIntentRepo,
		WebhookRecordRepo: stores.WebhookRecordRepo,
		Gateway:           s.GetGateway(),
		WebhookVerifier:   s.GetVerifier(),
	}
}
