// Package store provides the key-value recipient store backing the
// gateway. One Store instance wraps one table; the gateway holds two (the
// signup table, which also carries the ip# rate counters, and the preorder
// table).
//
// The contract is deliberately small: get, full put, and a partial update
// with set-if-absent semantics. Everything the gateway persists fits those
// three calls, and they map one-to-one onto DynamoDB's GetItem, PutItem
// and UpdateItem. Tests run against the in-memory implementation in
// memory.go.
package store

import (
	"context"

	"github.com/lafabrique/excerpt-gateway/internal/domain"
)

// Update is a partial recipient update. Zero-valued fields are left
// untouched; the *IfAbsent fields are written only when the attribute does
// not already exist (DynamoDB if_not_exists).
type Update struct {
	Status           domain.Status
	Lang             string
	VerifiedAtMs     int64
	UpdatedAtMs      int64
	UnsubscribedAtMs int64

	SourceIfAbsent      domain.Source
	CreatedAtIfAbsentMs int64
}

// Store is the persistence contract for one recipient table.
type Store interface {
	// GetRecipient returns the record for email, or (nil, nil) when absent.
	GetRecipient(ctx context.Context, email string) (*domain.Recipient, error)

	// PutRecipient writes the full record, replacing any existing item.
	PutRecipient(ctx context.Context, r *domain.Recipient) error

	// UpdateRecipient applies a partial update, creating the item if it
	// does not exist.
	UpdateRecipient(ctx context.Context, email string, upd Update) error

	// GetCounter returns the rate counter for key, or (nil, nil) when absent.
	GetCounter(ctx context.Context, key string) (*domain.RateCounter, error)

	// PutCounter writes the counter, replacing any existing item.
	PutCounter(ctx context.Context, c *domain.RateCounter) error
}
