package orchestrators

import (
	"context"
	"log/slog"

	"drinkmailer/internal/domain/audit"
)

// AuditRecorder persists audit events.
type AuditRecorder interface {
	Save(ctx context.Context, e audit.Event) error
}

// RequestMeta identifies who triggered an operation.
type RequestMeta struct {
	SessionID string
	IPAddress string
	UserAgent string
}

// event starts an audit event for the request.
func (m RequestMeta) event(cat audit.Category, act audit.Action) audit.Event {
	return audit.NewEvent(m.SessionID, cat, act).WithRequest(m.IPAddress, m.UserAgent)
}

// recordAudit saves e. Failures are logged and never surface to the caller.
func recordAudit(ctx context.Context, rec AuditRecorder, e audit.Event) {
	if rec == nil {
		return
	}
	if err := rec.Save(context.WithoutCancel(ctx), e); err != nil {
		slog.Error("audit_event", "event", "audit_write_failed", "category", e.Category, "action", e.Action, "error", err)
	}
}
