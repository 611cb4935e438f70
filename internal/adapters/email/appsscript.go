package email

import (
	"context"
	"time"

	"drinkmailer/internal/domain/announcement"
)

// ScriptMailer is the send half of the script endpoint client.
type ScriptMailer interface {
	SendMail(ctx context.Context, payload announcement.Payload) (string, error)
}

// AppsScriptDispatcher hands the payload to the script endpoint, which sends the mail itself.
type AppsScriptDispatcher struct {
	mailer ScriptMailer
}

// NewAppsScriptDispatcher wraps m.
func NewAppsScriptDispatcher(m ScriptMailer) *AppsScriptDispatcher {
	return &AppsScriptDispatcher{mailer: m}
}

// Name identifies the dispatcher.
func (d *AppsScriptDispatcher) Name() string { return DeliveryAppsScript }

// Dispatch posts the payload unchanged. The backend's message is passed through.
func (d *AppsScriptDispatcher) Dispatch(ctx context.Context, p announcement.Payload) (Receipt, error) {
	msg, err := d.mailer.SendMail(ctx, p)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Provider:   DeliveryAppsScript,
		Message:    msg,
		Recipients: len(p.Emails),
		SentAt:     time.Now(),
	}, nil
}
