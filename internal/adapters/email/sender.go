// Package email delivers drink-order announcements, either through the
// script endpoint or directly through a mail provider.
package email

import (
	"context"
	"fmt"
	"time"

	"drinkmailer/internal/adapters/appsscript"
	"drinkmailer/internal/domain/announcement"
)

// Delivery modes selectable by configuration.
const (
	DeliveryAppsScript = "appsscript"
	DeliveryResend     = "resend"
	DeliverySendGrid   = "sendgrid"
	DeliveryNoop       = "noop"
)

// Receipt describes an accepted send. A dispatcher that fails part way
// returns the receipt of what was accepted alongside the error.
type Receipt struct {
	Provider   string
	MessageIDs []string
	Message    string // user-facing text; empty means use the default
	Recipients int    // addresses covered by the accepted messages
	SentAt     time.Time
}

// Dispatcher delivers an announcement payload.
// Failures are reported as *appsscript.SendError.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, p announcement.Payload) (Receipt, error)
}

// addressing splits recipients into visible and hidden lists.
// In BCC mode the sender is the only visible recipient.
func addressing(p announcement.Payload, from string) (to, bcc []string) {
	if p.BCCMode {
		return []string{from}, p.Emails
	}
	return p.Emails, nil
}

// chunk splits emails into slices of at most n.
func chunk(emails []string, n int) [][]string {
	var out [][]string
	for len(emails) > n {
		out = append(out, emails[:n])
		emails = emails[n:]
	}
	if len(emails) > 0 {
		out = append(out, emails)
	}
	return out
}

func providerError(provider string, err error) error {
	return &appsscript.SendError{
		Message: fmt.Sprintf("%s: %s rejected the message", appsscript.DefaultSendFailed, provider),
		Err:     err,
	}
}
