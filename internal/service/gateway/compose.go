package gateway

import (
	"fmt"
	"html"

	"github.com/lafabrique/excerpt-gateway/internal/linksign"
	"github.com/lafabrique/excerpt-gateway/internal/mailer"
)

// composeExcerptMail builds the download email in the recipient's locale.
// The verification link carries the signature; the footer carries the
// signed unsubscribe link, and the RFC 8058 header pair points at the
// one-click endpoint.
func composeExcerptMail(siteURL, email, sig, lang string) *mailer.Message {
	verifyURL := linksign.VerifyURL(siteURL, email, sig, lang)
	unsubURL := linksign.UnsubscribeURL(siteURL, email, sig)

	var subject, body string
	if lang == "en" {
		subject = "Your excerpt — The Leader's Factory"
		body = fmt.Sprintf(
			`<p>Hello,</p>`+
				`<p>Thanks for your interest. Download the excerpt here: <a href="%s">%s</a></p>`+
				`<p>— The Leader's Factory</p>`+
				`<p style="font-size:12px;color:#888">No longer interested? <a href="%s">Unsubscribe</a>.</p>`,
			verifyURL, verifyURL, unsubURL)
	} else {
		subject = "Votre extrait — La Fabrique du Leader"
		body = fmt.Sprintf(
			`<p>Bonjour,</p>`+
				`<p>Merci pour votre intérêt. Vous pouvez télécharger l'extrait ici : <a href="%s">%s</a></p>`+
				`<p>— La Fabrique du Leader</p>`+
				`<p style="font-size:12px;color:#888">Plus intéressé ? <a href="%s">Se désinscrire</a>.</p>`,
			verifyURL, verifyURL, unsubURL)
	}

	msg := &mailer.Message{To: email, Subject: subject, HTML: body}
	mailer.AddOneClickUnsubscribeHeaders(msg, linksign.OneClickUnsubscribeURL(siteURL, email, sig))
	return msg
}

// composePreorderNotification builds the operator email. Every submitted
// field is HTML-escaped: the form is public and the notification renders
// in an inbox.
func composePreorderNotification(notifyAddr, email string, req PreorderRequest) *mailer.Message {
	esc := html.EscapeString
	body := fmt.Sprintf(
		`<h3>New preorder</h3>`+
			`<table>`+
			`<tr><td>Name</td><td>%s</td></tr>`+
			`<tr><td>Email</td><td>%s</td></tr>`+
			`<tr><td>Phone</td><td>%s</td></tr>`+
			`<tr><td>Country</td><td>%s</td></tr>`+
			`<tr><td>Format</td><td>%s</td></tr>`+
			`<tr><td>Quantity</td><td>%d</td></tr>`+
			`<tr><td>Notes</td><td>%s</td></tr>`+
			`</table>`,
		esc(req.Name), esc(email), esc(req.Phone), esc(req.Country),
		esc(string(req.Format)), req.Quantity, esc(req.Notes))

	return &mailer.Message{
		To:      notifyAddr,
		Subject: fmt.Sprintf("Preorder: %s (%s x%d)", req.Name, req.Format, req.Quantity),
		HTML:    body,
	}
}
