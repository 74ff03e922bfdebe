package testutil

import (
	"context"
	"time"

	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/domain/catalog"
	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa/webhook"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/sentry"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/gepvi/gepvi-users/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds the in-memory repositories used by service tests
type Stores struct {
	EntitlementRepo   *InMemoryEntitlementStore
	PaymentIntentRepo *InMemoryPaymentIntentStore
	WebhookRecordRepo *InMemoryWebhookRecordStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	stores     Stores
	db         *MockPostgresClient
	httpClient *MockHTTPClient
	gateway    yookassa.Client
	catalog    *catalog.Catalog
	sentry     *sentry.Service
	logger     *logger.Logger
	config     *config.Configuration
	now        time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.config.Logging.Level = types.LogLevelError
	s.config.Yookassa.ShopID = "123456"
	s.config.Yookassa.SecretKey = "test_secret"

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.sentry = sentry.NewSentryService(s.config, s.logger)

	s.catalog, err = catalog.New(s.config)
	if err != nil {
		s.T().Fatalf("failed to build catalog: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.ClearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		EntitlementRepo:   NewInMemoryEntitlementStore(),
		PaymentIntentRepo: NewInMemoryPaymentIntentStore(),
		WebhookRecordRepo: NewInMemoryWebhookRecordStore(),
	}
	s.db = NewMockPostgresClient(s.logger)
	s.httpClient = NewMockHTTPClient()
	s.gateway = yookassa.NewClient(s.config, s.httpClient, s.sentry, s.logger)
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.stores.EntitlementRepo.Clear()
	s.stores.PaymentIntentRepo.Clear()
	s.stores.WebhookRecordRepo.Clear()
	s.httpClient.Clear()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration. Tests may change it; the
// changes last for the rest of the suite.
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetHTTPClient returns the mock transport behind the gateway client
func (s *BaseServiceTestSuite) GetHTTPClient() *MockHTTPClient {
	return s.httpClient
}

// GetGateway returns a real gateway client wired to the mock transport
func (s *BaseServiceTestSuite) GetGateway() yookassa.Client {
	return s.gateway
}

func (s *BaseServiceTestSuite) GetCatalog() *catalog.Catalog {
	return s.catalog
}

func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

// GetVerifier builds a webhook verifier from the current configuration
func (s *BaseServiceTestSuite) GetVerifier() *webhook.Verifier {
	v, err := webhook.NewVerifier(s.config, s.logger)
	s.Require().NoError(err)
	return v
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUserID returns a fresh user id that no store knows about
func (s *BaseServiceTestSuite) GetUserID() string {
	return types.GenerateUserID()
}

// CreateUser stores a user with the default free quota and no subscription
func (s *BaseServiceTestSuite) CreateUser(alias *string) *entitlement.Entitlement {
	e := entitlement.New("", alias, s.config.Entitlement.FreeQuota)
	s.stores.EntitlementRepo.Put(e)
	return e
}
