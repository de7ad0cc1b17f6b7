package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/lafabrique/excerpt-gateway/internal/domain"
	"github.com/lafabrique/excerpt-gateway/internal/pkg/logger"
	"github.com/lafabrique/excerpt-gateway/internal/store"
)

// DeliveryEventKind classifies an inbound delivery notification.
type DeliveryEventKind string

const (
	EventBounce    DeliveryEventKind = "bounce"
	EventComplaint DeliveryEventKind = "complaint"
)

// DeliveryEvent is one bounce/complaint signal from the mail provider.
type DeliveryEvent struct {
	Email string
	Kind  DeliveryEventKind
}

// EventOutcome records what happened to one event in a batch.
type EventOutcome struct {
	Email string
	Err   error
}

// ApplyDeliveryEvents overwrites recipient status for a batch of bounce
// and complaint events. Updates run concurrently and settle individually:
// one failed write never blocks or fails the rest, and the batch itself
// always succeeds. Unknown kinds and empty emails are skipped.
func (s *Service) ApplyDeliveryEvents(ctx context.Context, events []DeliveryEvent) []EventOutcome {
	outcomes := make([]EventOutcome, len(events))
	var wg sync.WaitGroup

	for i, evt := range events {
		status, ok := statusForEvent(evt.Kind)
		if !ok || evt.Email == "" {
			outcomes[i] = EventOutcome{Email: evt.Email, Err: fmt.Errorf("skipped event %q for %q", evt.Kind, evt.Email)}
			continue
		}

		wg.Add(1)
		go func(i int, email string, status domain.Status) {
			defer wg.Done()
			err := s.signups.UpdateRecipient(ctx, domain.NormalizeEmail(email), store.Update{
				Status:      status,
				UpdatedAtMs: s.now().UnixMilli(),
			})
			if err != nil {
				logger.Error("delivery event update failed",
					"email", email, "status", string(status), "error", err.Error())
			} else {
				logger.Info("delivery event applied", "email", email, "status", string(status))
			}
			outcomes[i] = EventOutcome{Email: email, Err: err}
		}(i, evt.Email, status)
	}

	wg.Wait()
	return outcomes
}

func statusForEvent(kind DeliveryEventKind) (domain.Status, bool) {
	switch kind {
	case EventBounce:
		return domain.StatusBounced, true
	case EventComplaint:
		return domain.StatusComplained, true
	}
	return "", false
}
