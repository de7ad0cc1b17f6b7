// Package mailer is the outbound mail transport boundary. The gateway
// composes messages and hands them to a Mailer; delivery mechanics (and
// everything past "SES accepted it") belong to the collaborator behind
// the interface.
package mailer

import "context"

// Message is one outbound email. Headers carry the List-Unsubscribe pair
// for excerpt mail; operator notifications leave them empty.
type Message struct {
	To      string
	Subject string
	HTML    string
	Headers map[string]string
}

// Mailer sends a message and returns the provider's delivery id.
type Mailer interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// AddOneClickUnsubscribeHeaders sets the RFC 8058 header pair on msg.
func AddOneClickUnsubscribeHeaders(msg *Message, unsubscribeURL string) {
	if msg.Headers == nil {
		msg.Headers = make(map[string]string)
	}
	msg.Headers["List-Unsubscribe"] = "<" + unsubscribeURL + ">"
	msg.Headers["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
}
