package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lafabrique/excerpt-gateway/internal/botgate"
	"github.com/lafabrique/excerpt-gateway/internal/domain"
	"github.com/lafabrique/excerpt-gateway/internal/excerpt"
	"github.com/lafabrique/excerpt-gateway/internal/linksign"
	"github.com/lafabrique/excerpt-gateway/internal/mailer"
	"github.com/lafabrique/excerpt-gateway/internal/pkg/logger"
	"github.com/lafabrique/excerpt-gateway/internal/ratelimit"
	"github.com/lafabrique/excerpt-gateway/internal/store"
)

// Deps wires the service's collaborators.
type Deps struct {
	Signups   store.Store
	Preorders store.Store
	Limiter   ratelimit.Limiter
	Gate      *botgate.Gate
	Mailer    mailer.Mailer
	Excerpts  excerpt.Fetcher

	SigningSecret string
	SiteURL       string
	NotifyAddress string
	// Window is the per-email cool-down span; it mirrors the IP rate
	// window.
	Window time.Duration
}

// Service orchestrates link issuance and verification. Safe for
// concurrent use; all cross-request state lives in the stores.
type Service struct {
	signups   store.Store
	preorders store.Store
	limiter   ratelimit.Limiter
	gate      *botgate.Gate
	mailer    mailer.Mailer
	excerpts  excerpt.Fetcher

	secret     string
	siteURL    string
	notifyAddr string
	window     time.Duration
	now        func() time.Time
}

// NewService builds the state machine from its dependencies.
func NewService(d Deps) *Service {
	window := d.Window
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}
	return &Service{
		signups:    d.Signups,
		preorders:  d.Preorders,
		limiter:    d.Limiter,
		gate:       d.Gate,
		mailer:     d.Mailer,
		excerpts:   d.Excerpts,
		secret:     d.SigningSecret,
		siteURL:    d.SiteURL,
		notifyAddr: d.NotifyAddress,
		window:     window,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func normalizeLang(lang string) string {
	if lang == "en" {
		return "en"
	}
	return "fr"
}

// IssueLink validates a subscribe-and-send submission, dispatches the
// excerpt email with a signed download link, and upserts the recipient as
// pending. No store or mail call happens before every precondition
// passes.
func (s *Service) IssueLink(ctx context.Context, email, lang, token, clientIP string) error {
	email = domain.NormalizeEmail(email)
	if !domain.ValidEmail(email) {
		return ErrInvalidEmail
	}
	lang = normalizeLang(lang)

	if s.gate.Check(ctx, token, clientIP) == botgate.Failed {
		return ErrBotCheckFailed
	}

	ok, err := s.limiter.Allow(ctx, domain.IPCounterKey(clientIP))
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !ok {
		return ErrRateLimited
	}

	rec, err := s.signups.GetRecipient(ctx, email)
	if err != nil {
		return fmt.Errorf("loading recipient: %w", err)
	}
	if rec != nil {
		// Suppression is terminal; it must win over the retryable
		// cool-down rejection even when the status change is recent.
		if rec.Suppressed() {
			logger.Info("suppressed recipient rejected", "email", email, "status", string(rec.Status))
			return ErrSuppressed
		}
		if last := rec.LastActivityMs(); last > 0 && s.now().UnixMilli()-last < s.window.Milliseconds() {
			logger.Info("cool-down rejection", "email", email)
			return ErrRateLimited
		}
	}

	sig, err := linksign.Sign(email, s.secret)
	if err != nil {
		// Never fall through to an unsigned link.
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	msg := composeExcerptMail(s.siteURL, email, sig, lang)
	if _, err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending excerpt mail: %w", err)
	}

	nowMs := s.now().UnixMilli()
	err = s.signups.UpdateRecipient(ctx, email, store.Update{
		Status:              domain.StatusPending,
		Lang:                lang,
		UpdatedAtMs:         nowMs,
		SourceIfAbsent:      domain.SourceExcerpt,
		CreatedAtIfAbsentMs: nowMs,
	})
	if err != nil {
		// Mail went out but the record write failed: the recipient will
		// under-report as absent/stale. No reconciliation; log it loudly.
		logger.Error("mail sent but recipient write failed",
			"email", email, "error", err.Error())
		return fmt.Errorf("persisting recipient after send: %w", err)
	}

	logger.Info("excerpt link issued", "email", email, "lang", lang)
	return nil
}

// VerifyLink checks a signed download link, marks the recipient verified,
// and returns the PDF for the requested language.
func (s *Service) VerifyLink(ctx context.Context, email, sig, lang string) ([]byte, error) {
	if email == "" || sig == "" || !linksign.Verify(email, sig, s.secret) {
		return nil, ErrBadSignature
	}
	lang = normalizeLang(lang)

	err := s.signups.UpdateRecipient(ctx, email, store.Update{
		Status:         domain.StatusVerified,
		VerifiedAtMs:   s.now().UnixMilli(),
		SourceIfAbsent: domain.SourceExcerpt,
	})
	if err != nil {
		return nil, fmt.Errorf("marking recipient verified: %w", err)
	}

	data, err := s.excerpts.Fetch(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("fetching excerpt: %w", err)
	}

	logger.Info("excerpt link verified", "email", email, "lang", lang)
	return data, nil
}

// Unsubscribe marks the recipient unsubscribed. Idempotent: repeating the
// call is a no-op success.
func (s *Service) Unsubscribe(ctx context.Context, email, sig string) error {
	if email == "" || sig == "" || !linksign.Verify(email, sig, s.secret) {
		return ErrBadSignature
	}

	err := s.signups.UpdateRecipient(ctx, email, store.Update{
		Status:           domain.StatusUnsubscribed,
		UnsubscribedAtMs: s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marking recipient unsubscribed: %w", err)
	}

	logger.Info("recipient unsubscribed", "email", email)
	return nil
}

// PreorderRequest is a validated-on-entry preorder submission. Quantity
// arrives already coerced (see CoerceQuantity).
type PreorderRequest struct {
	Email    string
	Name     string
	Phone    string
	Country  string
	Notes    string
	Format   domain.Format
	Quantity int
	Lang     string
	Token    string
	ClientIP string
}

// CoerceQuantity turns whatever the client sent into an integer ≥ 1.
// Junk input falls back to 1 rather than failing the whole submission.
func CoerceQuantity(raw any) int {
	switch v := raw.(type) {
	case float64:
		if n := int(v); n >= 1 {
			return n
		}
	case int:
		if v >= 1 {
			return v
		}
	case string:
		n := 0
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil && n >= 1 {
			return n
		}
	}
	return 1
}

// IssuePreorder validates a preorder submission, notifies the operator
// address, and upserts the preorder record. Suppression is checked
// against the signup table; the cool-down runs against the preorder
// table.
func (s *Service) IssuePreorder(ctx context.Context, req PreorderRequest) error {
	// Validation runs before the limiter so a malformed submission never
	// writes a counter or burns rate budget.
	email := domain.NormalizeEmail(req.Email)
	if !domain.ValidEmail(email) {
		return ErrInvalidEmail
	}
	if len(strings.TrimSpace(req.Name)) < 2 {
		return ErrInvalidName
	}
	if !domain.ValidFormat(req.Format) {
		return ErrInvalidFormat
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	if s.gate.Check(ctx, req.Token, req.ClientIP) == botgate.Failed {
		return ErrBotCheckFailed
	}

	ok, err := s.limiter.Allow(ctx, domain.IPCounterKey(req.ClientIP))
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !ok {
		return ErrRateLimited
	}

	signup, err := s.signups.GetRecipient(ctx, email)
	if err != nil {
		return fmt.Errorf("loading signup recipient: %w", err)
	}
	if signup != nil && signup.Suppressed() {
		logger.Info("suppressed recipient rejected on preorder", "email", email)
		return ErrSuppressed
	}

	prior, err := s.preorders.GetRecipient(ctx, email)
	if err != nil {
		return fmt.Errorf("loading preorder record: %w", err)
	}
	if prior != nil {
		if last := prior.LastActivityMs(); last > 0 && s.now().UnixMilli()-last < s.window.Milliseconds() {
			logger.Info("preorder cool-down rejection", "email", email)
			return ErrRateLimited
		}
	}

	if s.notifyAddr == "" {
		return fmt.Errorf("%w: operator notify address is missing", ErrNotConfigured)
	}

	msg := composePreorderNotification(s.notifyAddr, email, req)
	if _, err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending preorder notification: %w", err)
	}

	nowMs := s.now().UnixMilli()
	rec := &domain.Recipient{
		ID:          uuid.New().String(),
		Email:       email,
		Status:      domain.StatusPreorder,
		Source:      domain.SourcePreorder,
		Lang:        normalizeLang(req.Lang),
		Name:        strings.TrimSpace(req.Name),
		Phone:       req.Phone,
		Country:     req.Country,
		Notes:       req.Notes,
		Format:      req.Format,
		Quantity:    req.Quantity,
		CreatedAtMs: nowMs,
		UpdatedAtMs: nowMs,
	}
	if err := s.preorders.PutRecipient(ctx, rec); err != nil {
		logger.Error("notification sent but preorder write failed",
			"email", email, "error", err.Error())
		return fmt.Errorf("persisting preorder after notify: %w", err)
	}

	logger.Info("preorder recorded", "email", email, "format", string(req.Format))
	return nil
}
