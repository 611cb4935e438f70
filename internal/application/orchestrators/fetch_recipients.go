package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"drinkmailer/internal/adapters/appsscript"
	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/audit"
	"drinkmailer/internal/domain/workflow"
)

// RecipientFetcher loads the recipient list from the backend.
type RecipientFetcher interface {
	FetchRecipients(ctx context.Context, dept, keyword string) (appsscript.RecipientsResponse, error)
}

// FetchRecipientsInput carries input for the fetch orchestrator.
type FetchRecipientsInput struct {
	Workflow *workflow.Workflow
	Dept     string // "" or announcement.DeptAll means every department
	Keyword  string
	Request  RequestMeta
}

// FetchRecipientsDeps holds dependencies for FetchRecipients.
type FetchRecipientsDeps struct {
	Fetcher RecipientFetcher
	Audit   AuditRecorder
}

// FetchRecipientsResult reports what happened to the response.
type FetchRecipientsResult struct {
	Generation uint64
	Applied    bool // false when a newer fetch was issued meanwhile
	Count      int
}

// ExecuteFetchRecipients reloads the session's recipient list.
// PRE: Workflow is non-nil
// POST: On success the list and selection are replaced unless the response is stale.
// On failure the previous list is kept and the workflow shows the error message.
func ExecuteFetchRecipients(ctx context.Context, input FetchRecipientsInput, deps FetchRecipientsDeps) (FetchRecipientsResult, error) {
	dept := input.Dept
	if dept == "" {
		dept = announcement.DeptAll
	}
	gen := input.Workflow.BeginFetch(dept, input.Keyword)
	result := FetchRecipientsResult{Generation: gen}

	resp, err := deps.Fetcher.FetchRecipients(ctx, dept, input.Keyword)
	if err != nil {
		msg := workflow.StatusFetchFailed
		var fe *appsscript.FetchError
		if errors.As(err, &fe) && fe.Message != "" {
			msg = fe.Message
		}
		result.Applied = input.Workflow.FailFetch(gen, msg)
		slog.Warn("recipient_event", "event", "fetch_failed", "session_id", input.Request.SessionID, "generation", gen, "stale", !result.Applied, "error", err)
		recordAudit(ctx, deps.Audit, input.Request.event(audit.CategoryRecipients, audit.ActionFetch).
			WithSeverity(audit.SeverityWarning).
			WithDescription(msg).
			WithMetadata(map[string]any{"dept": dept, "keyword": input.Keyword, "generation": gen}))
		return result, err
	}

	result.Count = len(resp.List)
	result.Applied = input.Workflow.CompleteFetch(gen, resp.List, resp.AllDepts)
	if !result.Applied {
		slog.Info("recipient_event", "event", "stale_fetch_discarded", "session_id", input.Request.SessionID, "generation", gen)
	} else {
		slog.Info("recipient_event", "event", "fetch_applied", "session_id", input.Request.SessionID, "generation", gen, "count", result.Count)
	}
	recordAudit(ctx, deps.Audit, input.Request.event(audit.CategoryRecipients, audit.ActionFetch).
		WithDescription("recipient list loaded").
		WithMetadata(map[string]any{
			"dept":       dept,
			"keyword":    input.Keyword,
			"generation": gen,
			"count":      result.Count,
			"applied":    result.Applied,
		}))
	return result, nil
}
