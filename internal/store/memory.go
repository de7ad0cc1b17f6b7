package store

import (
	"context"
	"sync"

	"github.com/lafabrique/excerpt-gateway/internal/domain"
)

// MemoryStore is an in-process Store used by tests and local development.
// It applies the same set-if-absent semantics as the DynamoDB
// implementation.
type MemoryStore struct {
	mu         sync.RWMutex
	recipients map[string]domain.Recipient
	counters   map[string]domain.RateCounter
}

// NewMemoryStore returns an empty in-memory table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recipients: make(map[string]domain.Recipient),
		counters:   make(map[string]domain.RateCounter),
	}
}

func (m *MemoryStore) GetRecipient(_ context.Context, email string) (*domain.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipients[email]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryStore) PutRecipient(_ context.Context, r *domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.Email] = *r
	return nil
}

func (m *MemoryStore) UpdateRecipient(_ context.Context, email string, upd Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recipients[email]
	r.Email = email
	if upd.Status != "" {
		r.Status = upd.Status
	}
	if upd.Lang != "" {
		r.Lang = upd.Lang
	}
	if upd.VerifiedAtMs != 0 {
		r.VerifiedAtMs = upd.VerifiedAtMs
	}
	if upd.UpdatedAtMs != 0 {
		r.UpdatedAtMs = upd.UpdatedAtMs
	}
	if upd.UnsubscribedAtMs != 0 {
		r.UnsubscribedAtMs = upd.UnsubscribedAtMs
	}
	if upd.SourceIfAbsent != "" && r.Source == "" {
		r.Source = upd.SourceIfAbsent
	}
	if upd.CreatedAtIfAbsentMs != 0 && r.CreatedAtMs == 0 {
		r.CreatedAtMs = upd.CreatedAtIfAbsentMs
	}
	m.recipients[email] = r
	return nil
}

func (m *MemoryStore) GetCounter(_ context.Context, key string) (*domain.RateCounter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.counters[key]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) PutCounter(_ context.Context, c *domain.RateCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[c.Key] = *c
	return nil
}

// Len reports how many recipient records exist. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recipients)
}
