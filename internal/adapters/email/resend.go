package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"

	"drinkmailer/internal/domain/announcement"
)

// resendRecipientLimit is the most addresses Resend accepts per field.
const resendRecipientLimit = 50

// resendSendFunc submits one message and returns its id.
type resendSendFunc func(ctx context.Context, params *resend.SendEmailRequest) (string, error)

// ResendDispatcher sends announcements through the Resend API.
type ResendDispatcher struct {
	send     resendSendFunc
	from     string
	renderer *Renderer
}

// NewResendDispatcher creates a dispatcher with the given API key and sender address.
// PRE: apiKey is a valid Resend API key; from is a valid sender address
func NewResendDispatcher(apiKey, from string, renderer *Renderer) *ResendDispatcher {
	client := resend.NewClient(apiKey)
	return &ResendDispatcher{
		send: func(ctx context.Context, params *resend.SendEmailRequest) (string, error) {
			sent, err := client.Emails.SendWithContext(ctx, params)
			if err != nil {
				return "", err
			}
			return sent.Id, nil
		},
		from:     from,
		renderer: renderer,
	}
}

// Name identifies the dispatcher.
func (d *ResendDispatcher) Name() string { return DeliveryResend }

// Dispatch renders p and sends it in chunks that fit Resend's recipient limit.
// PRE: p.Emails is non-empty
// POST: Returns one message id per chunk; stops at the first failed chunk.
// On failure the receipt still lists the chunks already accepted.
func (d *ResendDispatcher) Dispatch(ctx context.Context, p announcement.Payload) (Receipt, error) {
	msg, err := d.renderer.Render(p)
	if err != nil {
		return Receipt{}, providerError(DeliveryResend, err)
	}

	receipt := Receipt{Provider: DeliveryResend}
	for i, part := range chunk(p.Emails, resendRecipientLimit) {
		to, bcc := addressing(announcement.Payload{Emails: part, BCCMode: p.BCCMode}, d.from)
		params := &resend.SendEmailRequest{
			From:    d.from,
			To:      to,
			Bcc:     bcc,
			Subject: msg.Subject,
			Html:    msg.HTML,
			Text:    msg.Text,
		}
		id, err := d.send(ctx, params)
		if err != nil {
			slog.Error("resend_send_failed", "error", err, "chunk", i, "recipients", len(part))
			return receipt, providerError(DeliveryResend, err)
		}
		receipt.MessageIDs = append(receipt.MessageIDs, id)
		receipt.Recipients += len(part)
	}

	receipt.SentAt = time.Now()
	slog.Info("resend_sent", "messages", len(receipt.MessageIDs), "recipients", receipt.Recipients, "bcc", p.BCCMode)
	return receipt, nil
}
