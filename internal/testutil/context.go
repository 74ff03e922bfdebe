package testutil

import (
	"context"

	"github.com/gepvi/gepvi-users/internal/types"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.SetRequestID(ctx, types.GenerateUUID())
	ctx = types.SetCallerID(ctx, "test")
	return ctx
}
