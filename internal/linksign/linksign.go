// Package linksign produces and verifies the HMAC signatures that bind a
// download or unsubscribe link to an email address. The signature is the
// only proof of origin; there is no session or login system in front of
// the gateway.
//
// Links carry no expiry: a signed link stays valid until the secret
// rotates. That is intentional (permanent re-downloadability of the
// excerpt); do not add a TTL here without changing the product decision.
package linksign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoSecret is returned when signing is attempted without a configured
// secret. Callers must treat it as a fatal configuration error, never as
// permission to send an unsigned link.
var ErrNoSecret = errors.New("link signing secret is not configured")

// Sign computes the hex-encoded HMAC-SHA256 of the raw email string.
// Deterministic: the same email and secret always produce the same
// signature.
func Sign(email, secret string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(email))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the signature and compares in constant time.
// An empty secret fails closed.
func Verify(email, sig, secret string) bool {
	expected, err := Sign(email, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyURL builds the signed excerpt download link.
func VerifyURL(baseURL, email, sig, lang string) string {
	return fmt.Sprintf("%s/verify-excerpt?e=%s&sig=%s&lang=%s",
		strings.TrimRight(baseURL, "/"),
		url.QueryEscape(email), url.QueryEscape(sig), url.QueryEscape(lang))
}

// UnsubscribeURL builds the signed unsubscribe link.
func UnsubscribeURL(baseURL, email, sig string) string {
	return fmt.Sprintf("%s/unsubscribe?e=%s&sig=%s",
		strings.TrimRight(baseURL, "/"),
		url.QueryEscape(email), url.QueryEscape(sig))
}

// OneClickUnsubscribeURL builds the RFC 8058 List-Unsubscribe target.
func OneClickUnsubscribeURL(baseURL, email, sig string) string {
	return fmt.Sprintf("%s/one-click-unsubscribe?e=%s&sig=%s",
		strings.TrimRight(baseURL, "/"),
		url.QueryEscape(email), url.QueryEscape(sig))
}
