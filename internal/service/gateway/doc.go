// Package gateway implements the signed-link issuance and verification
// state machine.
//
// A recipient moves no-record → pending (IssueLink) → verified
// (VerifyLink), with unsubscribed reachable from any non-suppressed state
// and bounced/complained driven by the delivery-event collaborator. Every
// send-triggering operation runs the same gauntlet first: syntactic email
// check, bot gate, IP rate limit, per-email cool-down, suppression check.
//
// The service layer contains the business logic and depends only on the
// store, limiter, gate, mailer and excerpt interfaces. It never imports
// net/http; the API layer maps its sentinel errors onto status codes.
package gateway
