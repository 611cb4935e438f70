package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"drinkmailer/internal/adapters/appsscript"
	emailAdapter "drinkmailer/internal/adapters/email"
	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/audit"
	"drinkmailer/internal/domain/workflow"
)

// SubmitAnnouncementInput carries input for the send orchestrator.
type SubmitAnnouncementInput struct {
	Workflow *workflow.Workflow
	Form     announcement.Form
	BCCMode  bool

	// ApplyChecked replaces the displayed checkboxes with Checked before sending.
	// HTML forms post the whole checkbox set; the JSON API uses the stored selection.
	ApplyChecked bool
	Checked      []string

	Request RequestMeta
}

// SubmitAnnouncementDeps holds dependencies for SubmitAnnouncement.
type SubmitAnnouncementDeps struct {
	Dispatcher emailAdapter.Dispatcher
	Audit      AuditRecorder
	EgressIP   string
}

// SubmitAnnouncementResult describes an accepted send.
type SubmitAnnouncementResult struct {
	Message string
	Receipt emailAdapter.Receipt
}

// ExecuteSubmitAnnouncement validates the form and sends the announcement.
// PRE: Workflow is non-nil
// POST: No dispatch happens unless the form is valid and a recipient is selected.
// The posted checkboxes and BCC flag are stored only when the send starts.
// After a dispatch the workflow leaves Sending with the outcome message.
// Errors: *announcement.ValidationError, recipient.ErrNoRecipientsSelected,
// workflow.ErrBusy, *appsscript.SendError. A SendError after a partial
// delivery comes with the receipt of what was accepted.
func ExecuteSubmitAnnouncement(ctx context.Context, input SubmitAnnouncementInput, deps SubmitAnnouncementDeps) (SubmitAnnouncementResult, error) {
	wf := input.Workflow
	if err := input.Form.Validate(); err != nil {
		return SubmitAnnouncementResult{}, err
	}

	emails, err := wf.BeginSendWith(workflow.SendOptions{
		ApplyChecked: input.ApplyChecked,
		Checked:      input.Checked,
		BCCMode:      input.BCCMode,
	})
	if err != nil {
		slog.Info("send_event", "event", "send_blocked", "session_id", input.Request.SessionID, "reason", err.Error())
		return SubmitAnnouncementResult{}, err
	}

	payload := announcement.BuildPayload(input.Form, emails, input.BCCMode)
	meta := map[string]any{
		"vendor":     payload.Vendor,
		"recipients": len(payload.Emails),
		"bcc":        payload.BCCMode,
		"provider":   deps.Dispatcher.Name(),
	}

	receipt, err := deps.Dispatcher.Dispatch(ctx, payload)
	if err != nil {
		msg := workflow.StatusSendFailed
		var se *appsscript.SendError
		if errors.As(err, &se) && se.Message != "" {
			msg = se.Message
		} else {
			err = &appsscript.SendError{Message: msg, Err: err}
		}
		if len(receipt.MessageIDs) > 0 {
			meta["message_ids"] = receipt.MessageIDs
			meta["delivered"] = receipt.Recipients
			msg = partialDeliveryMessage(msg, receipt.Recipients, len(payload.Emails))
			err = &appsscript.SendError{Message: msg, Err: err}
		}
		wf.FinishSend(msg, false)
		slog.Warn("send_event", "event", "send_failed", "session_id", input.Request.SessionID, "provider", deps.Dispatcher.Name(), "delivered", receipt.Recipients, "error", err)
		recordAudit(ctx, deps.Audit, input.Request.event(audit.CategoryDispatch, audit.ActionSend).
			WithSeverity(audit.SeverityWarning).
			WithDescription(msg).
			WithEgress(deps.EgressIP).
			WithMetadata(meta))
		return SubmitAnnouncementResult{Message: msg, Receipt: receipt}, err
	}

	msg := receipt.Message
	if msg == "" {
		msg = workflow.StatusSendSucceeded
	}
	wf.FinishSend(msg, true)
	slog.Info("send_event", "event", "send_succeeded", "session_id", input.Request.SessionID, "provider", receipt.Provider, "recipients", receipt.Recipients)

	if len(receipt.MessageIDs) > 0 {
		meta["message_ids"] = receipt.MessageIDs
	}
	recordAudit(ctx, deps.Audit, input.Request.event(audit.CategoryDispatch, audit.ActionSend).
		WithDescription(msg).
		WithEgress(deps.EgressIP).
		WithMetadata(meta))

	return SubmitAnnouncementResult{Message: msg, Receipt: receipt}, nil
}

// partialDeliveryMessage warns that some recipients already have the announcement.
func partialDeliveryMessage(msg string, delivered, total int) string {
	return fmt.Sprintf("%s (partially delivered: %d of %d recipients already received it)", msg, delivered, total)
}
