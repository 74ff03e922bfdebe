package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
	"github.com/gepvi/gepvi-users/internal/types"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

type mockTx struct{}

// MockPostgresClient is a mock implementation of postgres client for testing
type MockPostgresClient struct {
	logger *logger.Logger
	txs    atomic.Int64

	mu      sync.Mutex
	pingErr error
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function within a transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	// If we're already in a transaction, reuse it
	if _, ok := ctx.Value(types.CtxDBTransaction).(*mockTx); ok {
		return fn(ctx)
	}

	// For testing, we just execute the function without a real transaction
	c.txs.Add(1)
	return fn(context.WithValue(ctx, types.CtxDBTransaction, &mockTx{}))
}

// Transactions returns how many top level transactions were started
func (c *MockPostgresClient) Transactions() int64 {
	return c.txs.Load()
}

func (c *MockPostgresClient) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

// SetPingError makes Ping fail with err until cleared with nil
func (c *MockPostgresClient) SetPingError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}
