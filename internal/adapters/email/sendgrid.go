package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"drinkmailer/internal/domain/announcement"
)

// sendGridClient is the part of *sendgrid.Client used here.
type sendGridClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridDispatcher sends announcements through the SendGrid v3 API.
type SendGridDispatcher struct {
	client   sendGridClient
	from     string
	renderer *Renderer
}

// NewSendGridDispatcher creates a dispatcher with the given API key and sender address.
func NewSendGridDispatcher(apiKey, from string, renderer *Renderer) *SendGridDispatcher {
	return &SendGridDispatcher{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		renderer: renderer,
	}
}

// Name identifies the dispatcher.
func (d *SendGridDispatcher) Name() string { return DeliverySendGrid }

// Dispatch renders p and sends a single message with one personalization.
func (d *SendGridDispatcher) Dispatch(ctx context.Context, p announcement.Payload) (Receipt, error) {
	rendered, err := d.renderer.Render(p)
	if err != nil {
		return Receipt{}, providerError(DeliverySendGrid, err)
	}

	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail("", d.from))
	msg.Subject = rendered.Subject
	msg.AddContent(
		mail.NewContent("text/plain", rendered.Text),
		mail.NewContent("text/html", rendered.HTML),
	)

	to, bcc := addressing(p, d.from)
	pers := mail.NewPersonalization()
	for _, addr := range to {
		pers.AddTos(mail.NewEmail("", addr))
	}
	for _, addr := range bcc {
		pers.AddBCCs(mail.NewEmail("", addr))
	}
	msg.AddPersonalizations(pers)

	if err := ctx.Err(); err != nil {
		return Receipt{}, providerError(DeliverySendGrid, err)
	}
	resp, err := d.client.Send(msg)
	if err != nil {
		slog.Error("sendgrid_send_failed", "error", err, "recipients", len(p.Emails))
		return Receipt{}, providerError(DeliverySendGrid, fmt.Errorf("sendgrid api error: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("sendgrid_send_rejected", "status", resp.StatusCode, "body", resp.Body)
		return Receipt{}, providerError(DeliverySendGrid, fmt.Errorf("sendgrid send failed: status=%d", resp.StatusCode))
	}

	receipt := Receipt{
		Provider:   DeliverySendGrid,
		Recipients: len(p.Emails),
		SentAt:     time.Now(),
	}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		receipt.MessageIDs = ids
	}
	slog.Info("sendgrid_sent", "recipients", receipt.Recipients, "bcc", p.BCCMode)
	return receipt, nil
}
