package orchestrators

import (
	"context"
	"log/slog"

	"drinkmailer/internal/domain/workflow"
)

// ToggleRecipientInput carries input for toggling one recipient.
type ToggleRecipientInput struct {
	Workflow *workflow.Workflow
	Email    string
	On       bool
}

// ExecuteToggleRecipient sets one recipient's checkbox.
// PRE: Workflow is non-nil
// POST: Returns workflow.ErrUnknownRecipient when Email is not in the displayed list
func ExecuteToggleRecipient(_ context.Context, input ToggleRecipientInput) error {
	if err := input.Workflow.Toggle(input.Email, input.On); err != nil {
		slog.Debug("selection_event", "event", "toggle_rejected", "email", input.Email)
		return err
	}
	return nil
}

// ToggleAllInput carries input for the select-all checkbox.
type ToggleAllInput struct {
	Workflow *workflow.Workflow
	On       bool
}

// ExecuteToggleAll sets every displayed recipient's checkbox.
// INVARIANT: Selection entries outside the displayed list are untouched
func ExecuteToggleAll(_ context.Context, input ToggleAllInput) {
	input.Workflow.ToggleAll(input.On)
}
