package domain

import "testing"

func TestValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"jean.dupont@mail.example.fr",
		"a+b@sub.domain.org",
	}
	for _, e := range valid {
		if !ValidEmail(e) {
			t.Errorf("expected %q to be valid", e)
		}
	}

	invalid := []string{
		"",
		"no-at-sign",
		"@example.com",
		"user@",
		"user@nodot",
		"two@@example.com",
		"spaces in@example.com",
		"user@example.com\n",
	}
	for _, e := range invalid {
		if ValidEmail(e) {
			t.Errorf("expected %q to be invalid", e)
		}
	}
}

func TestSuppressed(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusVerified, false},
		{StatusPreorder, false},
		{StatusBounced, true},
		{StatusComplained, true},
		{StatusUnsubscribed, true},
		{Status("BOUNCED"), true},
		{Status("Unsubscribed"), true},
		{Status(""), false},
	}
	for _, c := range cases {
		r := Recipient{Status: c.status}
		if got := r.Suppressed(); got != c.want {
			t.Errorf("Suppressed() with status %q = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestLastActivityMs(t *testing.T) {
	r := Recipient{CreatedAtMs: 100, VerifiedAtMs: 300, UpdatedAtMs: 200}
	if got := r.LastActivityMs(); got != 300 {
		t.Errorf("LastActivityMs() = %d, want 300", got)
	}

	empty := Recipient{}
	if got := empty.LastActivityMs(); got != 0 {
		t.Errorf("LastActivityMs() on zero record = %d, want 0", got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
