package testutil

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
)

// InMemoryWebhookRecordStore implements webhookrecord.Repository
type InMemoryWebhookRecordStore struct {
	mu      sync.RWMutex
	records []*webhookrecord.Record
	nextID  int64
	faults  *Faults
}

func NewInMemoryWebhookRecordStore() *InMemoryWebhookRecordStore {
	return &InMemoryWebhookRecordStore{faults: NewFaults()}
}

func (s *InMemoryWebhookRecordStore) Faults() *Faults {
	return s.faults
}

func (s *InMemoryWebhookRecordStore) Append(ctx context.Context, record *webhookrecord.Record) error {
	if err := s.faults.Next("webhook_record.append"); err != nil {
		return err
	}
	// raw_payload is NOT NULL
	if record.RawPayload == nil {
		return ierr.NewError("raw_payload must not be null").Mark(ierr.ErrDatabase)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	c := *record
	c.RawPayload = bytes.Clone(record.RawPayload)
	s.records = append(s.records, &c)
	return nil
}

func (s *InMemoryWebhookRecordStore) ListRecent(ctx context.Context, limit int) ([]*webhookrecord.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhookrecord.Record, len(s.records))
	copy(result, s.records)
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *InMemoryWebhookRecordStore) ListByIntent(ctx context.Context, intentID string) ([]*webhookrecord.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*webhookrecord.Record
	for _, r := range s.records {
		if r.MatchedIntentID != nil && *r.MatchedIntentID == intentID {
			result = append(result, r)
		}
	}
	return result, nil
}

// All returns every record in insertion order
func (s *InMemoryWebhookRecordStore) All() []*webhookrecord.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*webhookrecord.Record, len(s.records))
	copy(result, s.records)
	return result
}

func (s *InMemoryWebhookRecordStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.nextID = 0
	s.faults.Clear()
}
