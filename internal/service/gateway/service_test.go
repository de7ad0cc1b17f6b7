package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lafabrique/excerpt-gateway/internal/botgate"
	"github.com/lafabrique/excerpt-gateway/internal/domain"
	"github.com/lafabrique/excerpt-gateway/internal/linksign"
	"github.com/lafabrique/excerpt-gateway/internal/mailer"
	"github.com/lafabrique/excerpt-gateway/internal/ratelimit"
	"github.com/lafabrique/excerpt-gateway/internal/store"
)

// fakeMailer records outbound messages and can be told to fail.
type fakeMailer struct {
	mu   sync.Mutex
	sent []*mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg *mailer.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) last() *mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// fakeFetcher returns lang-tagged bytes so tests can tell variants apart.
type fakeFetcher struct{ err error }

func (f *fakeFetcher) Fetch(_ context.Context, lang string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-" + lang), nil
}

type testEnv struct {
	svc       *Service
	signups   *store.MemoryStore
	preorders *store.MemoryStore
	mailer    *fakeMailer
}

const testSecret = "test-secret-123"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	signups := store.NewMemoryStore()
	preorders := store.NewMemoryStore()
	fm := &fakeMailer{}
	svc := NewService(Deps{
		Signups:       signups,
		Preorders:     preorders,
		Limiter:       ratelimit.NewStoreLimiter(signups, 5*time.Minute, 10),
		Gate:          botgate.New("", "", 0), // disabled
		Mailer:        fm,
		Excerpts:      &fakeFetcher{},
		SigningSecret: testSecret,
		SiteURL:       "https://example.com",
		NotifyAddress: "ops@example.com",
		Window:        5 * time.Minute,
	})
	return &testEnv{svc: svc, signups: signups, preorders: preorders, mailer: fm}
}

func mustSign(t *testing.T, email string) string {
	t.Helper()
	sig, err := linksign.Sign(email, testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestIssueLink_CreatesPendingRecordAndSendsMail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.svc.IssueLink(ctx, "A@B.com", "fr", "", "1.2.3.4"); err != nil {
		t.Fatalf("IssueLink: %v", err)
	}

	rec, _ := env.signups.GetRecipient(ctx, "a@b.com")
	if rec == nil {
		t.Fatal("expected recipient record")
	}
	if rec.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
	if rec.Source != domain.SourceExcerpt {
		t.Errorf("source = %q, want excerpt", rec.Source)
	}
	if rec.CreatedAtMs == 0 || rec.UpdatedAtMs == 0 {
		t.Error("timestamps not set")
	}

	msg := env.mailer.last()
	if msg == nil || msg.To != "a@b.com" {
		t.Fatalf("unexpected mail: %+v", msg)
	}
	if !strings.Contains(msg.HTML, "/verify-excerpt?") {
		t.Error("mail body missing verification link")
	}
	if !strings.Contains(msg.HTML, "/unsubscribe?") {
		t.Error("mail body missing unsubscribe link")
	}
	if msg.Headers["List-Unsubscribe-Post"] != "List-Unsubscribe=One-Click" {
		t.Error("missing one-click unsubscribe header")
	}
	if !strings.Contains(msg.Subject, "extrait") {
		t.Errorf("expected French subject, got %q", msg.Subject)
	}
}

func TestIssueLink_EnglishVariant(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.IssueLink(context.Background(), "a@b.com", "en", "", "1.2.3.4"); err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	if !strings.Contains(env.mailer.last().Subject, "excerpt") {
		t.Errorf("expected English subject, got %q", env.mailer.last().Subject)
	}
}

func TestIssueLink_InvalidEmail_NoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.IssueLink(ctx, "not-an-email", "fr", "", "1.2.3.4")
	if !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if env.mailer.count() != 0 {
		t.Error("no mail may be sent on invalid input")
	}
	if env.signups.Len() != 0 {
		t.Error("no record may be written on invalid input")
	}
	if c, _ := env.signups.GetCounter(ctx, domain.IPCounterKey("1.2.3.4")); c != nil {
		t.Error("rate counter must not move on invalid input")
	}
}

func TestIssueLink_BotGateRejectsBeforeStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Configured gate + empty token fails without contacting the service.
	env.svc.gate = botgate.New("site-secret", "http://127.0.0.1:0", time.Second)

	err := env.svc.IssueLink(ctx, "a@b.com", "fr", "", "1.2.3.4")
	if !errors.Is(err, ErrBotCheckFailed) {
		t.Fatalf("expected ErrBotCheckFailed, got %v", err)
	}
	if env.signups.Len() != 0 || env.mailer.count() != 0 {
		t.Error("bot rejection must happen before any store or mail call")
	}
	if c, _ := env.signups.GetCounter(ctx, domain.IPCounterKey("1.2.3.4")); c != nil {
		t.Error("rate counter must not move on bot rejection")
	}
}

func TestIssueLink_IPRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		if err := env.svc.IssueLink(ctx, email, "fr", "", "9.9.9.9"); err != nil {
			t.Fatalf("IssueLink #%d: %v", i, err)
		}
	}

	err := env.svc.IssueLink(ctx, "eleventh@example.com", "fr", "", "9.9.9.9")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("11th call from one IP should be rate limited, got %v", err)
	}

	// A different IP is unaffected.
	if err := env.svc.IssueLink(ctx, "other@example.com", "fr", "", "8.8.8.8"); err != nil {
		t.Errorf("different IP should pass: %v", err)
	}
}

func TestIssueLink_PerEmailCoolDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	now := base
	env.svc.SetClock(func() time.Time { return now })

	if err := env.svc.IssueLink(ctx, "a@b.com", "fr", "", "1.1.1.1"); err != nil {
		t.Fatalf("first IssueLink: %v", err)
	}

	// Resubmission from a fresh IP still hits the per-email cool-down.
	err := env.svc.IssueLink(ctx, "a@b.com", "fr", "", "2.2.2.2")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected cool-down rejection, got %v", err)
	}
	if env.mailer.count() != 1 {
		t.Error("cool-down rejection must not send mail")
	}

	now = base.Add(6 * time.Minute)
	if err := env.svc.IssueLink(ctx, "a@b.com", "fr", "", "3.3.3.3"); err != nil {
		t.Errorf("resubmission after the window should pass: %v", err)
	}
}

func TestIssueLink_SuppressedAlwaysRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, status := range []domain.Status{domain.StatusBounced, domain.StatusComplained, domain.StatusUnsubscribed} {
		email := fmt.Sprintf("%s@example.com", status)
		env.signups.PutRecipient(ctx, &domain.Recipient{
			Email:  email,
			Status: status,
			// Old timestamps so the cool-down does not mask suppression.
			CreatedAtMs: 1000,
			UpdatedAtMs: 1000,
		})

		err := env.svc.IssueLink(ctx, email, "fr", "", "1.2.3.4")
		if !errors.Is(err, ErrSuppressed) {
			t.Errorf("status %s: expected ErrSuppressed, got %v", status, err)
		}
	}
	if env.mailer.count() != 0 {
		t.Error("no mail may reach a suppressed recipient")
	}
}

func TestIssueLink_FreshBounceRejectsAsSuppressed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	env.svc.SetClock(func() time.Time { return base })

	// A bounce event landed one minute ago, well inside the cool-down
	// window. Suppression must still win: 400 terminal, not 429 retryable.
	env.signups.PutRecipient(ctx, &domain.Recipient{
		Email:       "hard@example.com",
		Status:      domain.StatusBounced,
		CreatedAtMs: base.Add(-time.Hour).UnixMilli(),
		UpdatedAtMs: base.Add(-time.Minute).UnixMilli(),
	})

	err := env.svc.IssueLink(ctx, "hard@example.com", "fr", "", "1.2.3.4")
	if !errors.Is(err, ErrSuppressed) {
		t.Fatalf("expected ErrSuppressed for a freshly bounced recipient, got %v", err)
	}
	if env.mailer.count() != 0 {
		t.Error("no mail may reach a suppressed recipient")
	}
}

func TestIssueLink_MissingSecretIsConfigError(t *testing.T) {
	env := newTestEnv(t)
	env.svc.secret = ""

	err := env.svc.IssueLink(context.Background(), "a@b.com", "fr", "", "1.2.3.4")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if env.mailer.count() != 0 {
		t.Error("an unsigned link must never be sent")
	}
}

func TestIssueLink_MailFailure_NoRecordWritten(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp on fire")

	err := env.svc.IssueLink(context.Background(), "a@b.com", "fr", "", "1.2.3.4")
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected downstream failure, got %v", err)
	}
	if rec, _ := env.signups.GetRecipient(context.Background(), "a@b.com"); rec != nil {
		t.Error("record must not be written when the send failed")
	}
}

func TestVerifyLink_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	now := base
	env.svc.SetClock(func() time.Time { return now })

	if err := env.svc.IssueLink(ctx, "a@b.com", "fr", "", "1.2.3.4"); err != nil {
		t.Fatalf("IssueLink: %v", err)
	}

	now = base.Add(time.Hour)
	data, err := env.svc.VerifyLink(ctx, "a@b.com", mustSign(t, "a@b.com"), "fr")
	if err != nil {
		t.Fatalf("VerifyLink: %v", err)
	}
	if string(data) != "%PDF-fr" {
		t.Errorf("payload = %q, want French variant", data)
	}

	rec, _ := env.signups.GetRecipient(ctx, "a@b.com")
	if rec.Status != domain.StatusVerified {
		t.Errorf("status = %q, want verified", rec.Status)
	}
	if rec.VerifiedAtMs != now.UnixMilli() {
		t.Errorf("verifiedAt = %d, want %d", rec.VerifiedAtMs, now.UnixMilli())
	}
	if rec.Source != domain.SourceExcerpt {
		t.Errorf("source = %q, want excerpt preserved", rec.Source)
	}
}

func TestVerifyLink_BadSignature_StoreUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.VerifyLink(ctx, "a@b.com", "deadbeef", "fr")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if env.signups.Len() != 0 {
		t.Error("store must be untouched after a signature mismatch")
	}

	// Missing params look identical from the outside.
	if _, err := env.svc.VerifyLink(ctx, "", mustSign(t, "a@b.com"), "fr"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("missing email: expected ErrBadSignature, got %v", err)
	}
	if _, err := env.svc.VerifyLink(ctx, "a@b.com", "", "fr"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("missing signature: expected ErrBadSignature, got %v", err)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sig := mustSign(t, "a@b.com")

	for i := 0; i < 2; i++ {
		if err := env.svc.Unsubscribe(ctx, "a@b.com", sig); err != nil {
			t.Fatalf("Unsubscribe #%d: %v", i+1, err)
		}
		rec, _ := env.signups.GetRecipient(ctx, "a@b.com")
		if rec.Status != domain.StatusUnsubscribed {
			t.Errorf("status after call %d = %q", i+1, rec.Status)
		}
		if rec.UnsubscribedAtMs == 0 {
			t.Error("unsubscribedAt not set")
		}
	}
}

func TestUnsubscribe_BadSignature(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.Unsubscribe(context.Background(), "a@b.com", "deadbeef"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestIssuePreorder_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.IssuePreorder(ctx, PreorderRequest{
		Email:    "Buyer@Example.com",
		Name:     "Jean Dupont",
		Phone:    "+33 6 00 00 00 00",
		Country:  "FR",
		Notes:    `wants <b>two</b> & "fast"`,
		Format:   domain.FormatPrint,
		Quantity: 2,
		Lang:     "fr",
		ClientIP: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("IssuePreorder: %v", err)
	}

	rec, _ := env.preorders.GetRecipient(ctx, "buyer@example.com")
	if rec == nil {
		t.Fatal("expected preorder record")
	}
	if rec.Status != domain.StatusPreorder || rec.Source != domain.SourcePreorder {
		t.Errorf("status/source = %q/%q", rec.Status, rec.Source)
	}
	if rec.ID == "" {
		t.Error("preorder record missing id")
	}
	if rec.Quantity != 2 || rec.Format != domain.FormatPrint {
		t.Errorf("fields not persisted: %+v", rec)
	}

	msg := env.mailer.last()
	if msg.To != "ops@example.com" {
		t.Errorf("notification went to %q, want operator address", msg.To)
	}
	if strings.Contains(msg.HTML, "<b>two</b>") {
		t.Error("submitted fields must be HTML-escaped")
	}
	if !strings.Contains(msg.HTML, "&lt;b&gt;two&lt;/b&gt;") {
		t.Errorf("escaped notes missing from body: %s", msg.HTML)
	}
}

func TestIssuePreorder_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := PreorderRequest{
		Email: "buyer@example.com", Name: "Jean", Format: domain.FormatDigital,
		Quantity: 1, ClientIP: "1.2.3.4",
	}

	bad := base
	bad.Email = "nope"
	if err := env.svc.IssuePreorder(ctx, bad); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("bad email: got %v", err)
	}

	bad = base
	bad.Name = " J "
	if err := env.svc.IssuePreorder(ctx, bad); !errors.Is(err, ErrInvalidName) {
		t.Errorf("short name: got %v", err)
	}

	bad = base
	bad.Format = "audiobook"
	if err := env.svc.IssuePreorder(ctx, bad); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("bad format: got %v", err)
	}

	if env.mailer.count() != 0 || env.preorders.Len() != 0 {
		t.Error("validation failures must leave no side effects")
	}
	if c, _ := env.signups.GetCounter(ctx, domain.IPCounterKey("1.2.3.4")); c != nil {
		t.Error("rate counter must not move on invalid input")
	}
}

func TestIssuePreorder_SuppressionUsesSignupTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signups.PutRecipient(ctx, &domain.Recipient{
		Email: "buyer@example.com", Status: domain.StatusComplained,
		CreatedAtMs: 1000, UpdatedAtMs: 1000,
	})

	err := env.svc.IssuePreorder(ctx, PreorderRequest{
		Email: "buyer@example.com", Name: "Jean", Format: domain.FormatPrint,
		Quantity: 1, ClientIP: "1.2.3.4",
	})
	if !errors.Is(err, ErrSuppressed) {
		t.Fatalf("expected ErrSuppressed from signup table, got %v", err)
	}
}

func TestIssuePreorder_CoolDownUsesPreorderTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	now := base
	env.svc.SetClock(func() time.Time { return now })

	req := PreorderRequest{
		Email: "buyer@example.com", Name: "Jean", Format: domain.FormatPrint,
		Quantity: 1, ClientIP: "1.2.3.4",
	}
	if err := env.svc.IssuePreorder(ctx, req); err != nil {
		t.Fatalf("first preorder: %v", err)
	}

	req.ClientIP = "5.6.7.8"
	if err := env.svc.IssuePreorder(ctx, req); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected preorder cool-down, got %v", err)
	}

	now = base.Add(6 * time.Minute)
	if err := env.svc.IssuePreorder(ctx, req); err != nil {
		t.Errorf("preorder after window should pass: %v", err)
	}
}

func TestCoerceQuantity(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{float64(3), 3},
		{float64(0), 1},
		{float64(-2), 1},
		{2, 2},
		{"4", 4},
		{" 5 ", 5},
		{"lots", 1},
		{nil, 1},
	}
	for _, c := range cases {
		if got := CoerceQuantity(c.in); got != c.want {
			t.Errorf("CoerceQuantity(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestApplyDeliveryEvents_SettlesIndividually(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signups.PutRecipient(ctx, &domain.Recipient{Email: "a@b.com", Status: domain.StatusVerified})
	env.signups.PutRecipient(ctx, &domain.Recipient{Email: "c@d.com", Status: domain.StatusPending})

	outcomes := env.svc.ApplyDeliveryEvents(ctx, []DeliveryEvent{
		{Email: "a@b.com", Kind: EventBounce},
		{Email: "c@d.com", Kind: EventComplaint},
		{Email: "", Kind: EventBounce},
		{Email: "e@f.com", Kind: "delivery"},
	})
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[1].Err != nil {
		t.Errorf("valid events failed: %v / %v", outcomes[0].Err, outcomes[1].Err)
	}
	if outcomes[2].Err == nil || outcomes[3].Err == nil {
		t.Error("skipped events should report an error in their outcome")
	}

	a, _ := env.signups.GetRecipient(ctx, "a@b.com")
	if a.Status != domain.StatusBounced {
		t.Errorf("a@b.com status = %q, want bounced", a.Status)
	}
	c, _ := env.signups.GetRecipient(ctx, "c@d.com")
	if c.Status != domain.StatusComplained {
		t.Errorf("c@d.com status = %q, want complained", c.Status)
	}
}
