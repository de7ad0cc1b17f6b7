package api

import (
	"errors"
	"net"
	"net/http"

	"github.com/lafabrique/excerpt-gateway/internal/domain"
	"github.com/lafabrique/excerpt-gateway/internal/pkg/httputil"
	"github.com/lafabrique/excerpt-gateway/internal/service/gateway"
)

// Handlers holds the HTTP handlers for the gateway endpoints.
type Handlers struct {
	svc        *gateway.Service
	confirmURL string
}

// NewHandlers creates the handler set.
func NewHandlers(svc *gateway.Service, confirmURL string) *Handlers {
	return &Handlers{svc: svc, confirmURL: confirmURL}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	httputil.OK(w, map[string]string{"status": "healthy"})
}

// writeServiceError maps service sentinels onto the HTTP contract.
// Anything unmatched is a downstream or configuration failure: generic
// 500, real cause logged server-side only.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidEmail),
		errors.Is(err, gateway.ErrInvalidName),
		errors.Is(err, gateway.ErrInvalidFormat),
		errors.Is(err, gateway.ErrBotCheckFailed),
		errors.Is(err, gateway.ErrSuppressed):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, gateway.ErrBadSignature):
		// No detail about which signed parameter failed.
		httputil.BadRequest(w, gateway.ErrBadSignature.Error())
	case errors.Is(err, gateway.ErrRateLimited):
		httputil.TooManyRequests(w, "too many requests, try again later")
	default:
		httputil.InternalError(w, err)
	}
}

type subscribeRequest struct {
	Email   string `json:"email"`
	Lang    string `json:"lang"`
	TsToken string `json:"tsToken"`
}

// SubscribeAndSend handles POST /subscribe-and-send.
func (h *Handlers) SubscribeAndSend(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.svc.IssueLink(r.Context(), req.Email, req.Lang, req.TsToken, clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"ok": true})
}

// VerifyExcerpt handles GET /verify-excerpt. On success the response body
// is the PDF itself.
func (h *Handlers) VerifyExcerpt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := h.svc.VerifyLink(r.Context(), q.Get("e"), q.Get("sig"), q.Get("lang"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.PDF(w, data)
}

// Unsubscribe handles GET|POST /unsubscribe and redirects to the
// confirmation page on success.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email, sig, lang := signedParams(r)
	if err := h.svc.Unsubscribe(r.Context(), email, sig); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Redirect(w, confirmLocation(h.confirmURL, lang))
}

// OneClickUnsubscribe handles GET|POST /one-click-unsubscribe. Mailbox
// providers POST here with no user in the loop, so the response is a
// bare 200 with no redirect and no confirmation step.
func (h *Handlers) OneClickUnsubscribe(w http.ResponseWriter, r *http.Request) {
	email, sig, _ := signedParams(r)
	if err := h.svc.Unsubscribe(r.Context(), email, sig); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.PlainText(w, "Unsubscribed")
}

type preorderRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Country  string `json:"country"`
	Notes    string `json:"notes"`
	Format   string `json:"format"`
	Quantity any    `json:"quantity"`
	Lang     string `json:"lang"`
	TsToken  string `json:"tsToken"`
}

// Preorder handles POST /preorder.
func (h *Handlers) Preorder(w http.ResponseWriter, r *http.Request) {
	var req preorderRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.svc.IssuePreorder(r.Context(), gateway.PreorderRequest{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Country:  req.Country,
		Notes:    req.Notes,
		Format:   domain.Format(req.Format),
		Quantity: gateway.CoerceQuantity(req.Quantity),
		Lang:     req.Lang,
		Token:    req.TsToken,
		ClientIP: clientIP(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"ok": true})
}

// signedParams pulls e/sig/lang from the query string or, for form
// POSTs, the body. Query wins when both are present.
func signedParams(r *http.Request) (email, sig, lang string) {
	q := r.URL.Query()
	email, sig, lang = q.Get("e"), q.Get("sig"), q.Get("lang")
	if email == "" && sig == "" && r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			email, sig = r.PostForm.Get("e"), r.PostForm.Get("sig")
			if lang == "" {
				lang = r.PostForm.Get("lang")
			}
		}
	}
	return email, sig, lang
}

func confirmLocation(confirmURL, lang string) string {
	if confirmURL == "" {
		confirmURL = "/"
	}
	if lang == "en" {
		return confirmURL + "?lang=en"
	}
	return confirmURL
}

// clientIP trusts the RealIP middleware, which already folds
// X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
