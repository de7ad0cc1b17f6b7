package domain

import "strings"

// Status tracks where a recipient sits in the excerpt lifecycle.
type Status string

const (
	StatusPending      Status = "pending"
	StatusVerified     Status = "verified"
	StatusBounced      Status = "bounced"
	StatusComplained   Status = "complained"
	StatusUnsubscribed Status = "unsubscribed"
	StatusPreorder     Status = "preorder"
)

// Source indicates which form first created the record. It is written
// set-if-absent and never overwritten afterwards.
type Source string

const (
	SourceExcerpt  Source = "excerpt"
	SourcePreorder Source = "preorder"
)

// Format is the requested preorder edition.
type Format string

const (
	FormatPrint   Format = "print"
	FormatDigital Format = "digital"
)

// ValidFormat reports whether f is a recognized preorder format.
func ValidFormat(f Format) bool {
	return f == FormatPrint || f == FormatDigital
}

// Recipient is one entry in the recipient table, keyed by email.
// All timestamps are milliseconds since epoch; zero means unset.
type Recipient struct {
	Email            string `json:"email" dynamodbav:"email"`
	Status           Status `json:"status" dynamodbav:"status"`
	Lang             string `json:"lang,omitempty" dynamodbav:"lang,omitempty"`
	Source           Source `json:"source,omitempty" dynamodbav:"source,omitempty"`
	CreatedAtMs      int64  `json:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
	VerifiedAtMs     int64  `json:"verifiedAt,omitempty" dynamodbav:"verifiedAt,omitempty"`
	UpdatedAtMs      int64  `json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
	UnsubscribedAtMs int64  `json:"unsubscribedAt,omitempty" dynamodbav:"unsubscribedAt,omitempty"`

	// Preorder-only fields.
	ID       string `json:"id,omitempty" dynamodbav:"id,omitempty"`
	Name     string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Phone    string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Country  string `json:"country,omitempty" dynamodbav:"country,omitempty"`
	Notes    string `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	Format   Format `json:"format,omitempty" dynamodbav:"format,omitempty"`
	Quantity int    `json:"quantity,omitempty" dynamodbav:"quantity,omitempty"`
}

// Suppressed reports whether the recipient is in a terminal state that
// blocks all further sends. The status comparison is case-insensitive
// because historical records were written by handlers that disagreed on
// casing.
func (r *Recipient) Suppressed() bool {
	switch Status(strings.ToLower(string(r.Status))) {
	case StatusBounced, StatusComplained, StatusUnsubscribed:
		return true
	}
	return false
}

// LastActivityMs returns the most recent of the recipient's lifecycle
// timestamps. The per-email cool-down compares this against the rate
// window.
func (r *Recipient) LastActivityMs() int64 {
	ts := r.CreatedAtMs
	if r.VerifiedAtMs > ts {
		ts = r.VerifiedAtMs
	}
	if r.UpdatedAtMs > ts {
		ts = r.UpdatedAtMs
	}
	return ts
}

// RateCounter is a fixed-window request counter. Count is meaningful only
// within [WindowStartMs, WindowStartMs+window); outside it the next write
// resets the counter.
type RateCounter struct {
	Key           string `json:"email" dynamodbav:"email"`
	Count         int    `json:"count" dynamodbav:"count"`
	WindowStartMs int64  `json:"windowStart" dynamodbav:"windowStart"`
}

// IPCounterKey derives the synthetic counter key for an IP address.
// Counters share the recipient table, so the prefix keeps them out of the
// email keyspace.
func IPCounterKey(ip string) string {
	return "ip#" + ip
}

// ValidEmail checks the local@domain.tld shape without attempting full
// RFC 5322 parsing. Mirrors the checks the sending pipeline applies before
// composing mail.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, dom := parts[0], parts[1]
	if len(local) == 0 || len(local) > 64 {
		return false
	}
	if len(dom) == 0 || len(dom) > 253 || !strings.Contains(dom, ".") {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	return true
}

// NormalizeEmail lower-cases and trims an address so store keys are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
