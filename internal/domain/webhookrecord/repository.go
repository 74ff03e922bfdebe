package webhookrecord

import (
	"context"
)

type Repository interface {
	Append(ctx context.Context, record *Record) error
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
	ListByIntent(ctx context.Context, intentID string) ([]*Record, error)
}
