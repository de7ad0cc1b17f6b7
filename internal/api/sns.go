package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lafabrique/excerpt-gateway/internal/pkg/httputil"
	"github.com/lafabrique/excerpt-gateway/internal/pkg/logger"
	"github.com/lafabrique/excerpt-gateway/internal/service/gateway"
)

// snsEnvelope is the outer SNS message wrapping an SES notification.
type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// sesNotification is the SES event carried inside the SNS Message field.
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	Bounce           *struct {
		BouncedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		ComplainedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
}

// SESEvents handles POST /events/ses: bounce and complaint notifications
// delivered by SNS. The endpoint always answers 200 once the envelope
// parses, so SNS never retries a batch because one recipient update
// failed; per-recipient failures are logged and settled individually.
func (h *Handlers) SESEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		httputil.BadRequest(w, "invalid SNS envelope")
		return
	}

	if env.Type == "SubscriptionConfirmation" {
		confirmSubscription(env.SubscribeURL)
		httputil.OK(w, map[string]bool{"ok": true})
		return
	}

	var note sesNotification
	if err := json.Unmarshal([]byte(env.Message), &note); err != nil {
		logger.Error("unparseable SES notification", "message_id", env.MessageID, "error", err.Error())
		// 200 regardless so SNS does not redeliver junk forever.
		httputil.OK(w, map[string]bool{"ok": true})
		return
	}

	events := eventsFromNotification(note)
	outcomes := h.svc.ApplyDeliveryEvents(r.Context(), events)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		logger.Error("delivery event batch had failures",
			"message_id", env.MessageID, "total", len(outcomes), "failed", failed)
	}

	httputil.OK(w, map[string]any{"ok": true, "applied": len(outcomes) - failed})
}

func eventsFromNotification(note sesNotification) []gateway.DeliveryEvent {
	var events []gateway.DeliveryEvent
	if note.Bounce != nil {
		for _, rcpt := range note.Bounce.BouncedRecipients {
			events = append(events, gateway.DeliveryEvent{Email: rcpt.EmailAddress, Kind: gateway.EventBounce})
		}
	}
	if note.Complaint != nil {
		for _, rcpt := range note.Complaint.ComplainedRecipients {
			events = append(events, gateway.DeliveryEvent{Email: rcpt.EmailAddress, Kind: gateway.EventComplaint})
		}
	}
	return events
}

// confirmSubscription completes the SNS handshake by fetching the
// one-time confirmation URL.
func confirmSubscription(subscribeURL string) {
	if subscribeURL == "" {
		return
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(subscribeURL)
	if err != nil {
		logger.Error("SNS subscription confirmation failed", "error", err.Error())
		return
	}
	resp.Body.Close()
	logger.Info("SNS subscription confirmed")
}
