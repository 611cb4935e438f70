package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"drinkmailer/internal/domain/announcement"
)

// NoopDispatcher logs announcements without delivering them. Used in development.
type NoopDispatcher struct {
	renderer *Renderer
}

// NewNoopDispatcher creates a NoopDispatcher.
func NewNoopDispatcher(renderer *Renderer) *NoopDispatcher {
	return &NoopDispatcher{renderer: renderer}
}

// Name identifies the dispatcher.
func (d *NoopDispatcher) Name() string { return DeliveryNoop }

// Dispatch renders p to exercise the template and logs the result.
func (d *NoopDispatcher) Dispatch(_ context.Context, p announcement.Payload) (Receipt, error) {
	msg, err := d.renderer.Render(p)
	if err != nil {
		return Receipt{}, providerError(DeliveryNoop, err)
	}
	slog.Info("noop_email_send", "subject", msg.Subject, "recipients", len(p.Emails), "bcc", p.BCCMode)
	now := time.Now()
	return Receipt{
		Provider:   DeliveryNoop,
		MessageIDs: []string{fmt.Sprintf("noop-%d", now.UnixNano())},
		Message:    fmt.Sprintf("logged announcement for %d recipients (not delivered)", len(p.Emails)),
		Recipients: len(p.Emails),
		SentAt:     now,
	}, nil
}
