package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"drinkmailer/internal/domain/audit"
)

// ErrInvalidPasscode is returned when the organizer passcode does not match.
var ErrInvalidPasscode = errors.New("invalid passcode")

// OrganizerLoginInput carries input for the organizer login orchestrator.
type OrganizerLoginInput struct {
	Passcode string
	Request  RequestMeta
}

// OrganizerLoginDeps holds dependencies for OrganizerLogin.
type OrganizerLoginDeps struct {
	AccessHash string // bcrypt hash
	Audit      AuditRecorder
}

// ExecuteOrganizerLogin checks the passcode against the configured hash.
// PRE: AccessHash is a bcrypt hash
// POST: Returns nil on match, ErrInvalidPasscode otherwise; every attempt is audited
func ExecuteOrganizerLogin(ctx context.Context, input OrganizerLoginInput, deps OrganizerLoginDeps) error {
	ev := input.Request.event(audit.CategoryAccess, audit.ActionLogin)

	if input.Passcode == "" || deps.AccessHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(deps.AccessHash), []byte(input.Passcode)) != nil {
		slog.Info("auth_event", "event", "login_failed", "session_id", input.Request.SessionID, "ip", input.Request.IPAddress)
		recordAudit(ctx, deps.Audit, ev.WithSeverity(audit.SeverityWarning).WithDescription("organizer login failed"))
		return ErrInvalidPasscode
	}

	slog.Info("auth_event", "event", "login_success", "session_id", input.Request.SessionID)
	recordAudit(ctx, deps.Audit, ev.WithDescription("organizer login"))
	return nil
}

// OrganizerLogoutDeps holds dependencies for OrganizerLogout.
type OrganizerLogoutDeps struct {
	Audit AuditRecorder
}

// ExecuteOrganizerLogout records the end of an organizer session.
func ExecuteOrganizerLogout(ctx context.Context, req RequestMeta, deps OrganizerLogoutDeps) {
	slog.Info("auth_event", "event", "logout", "session_id", req.SessionID)
	recordAudit(ctx, deps.Audit, req.event(audit.CategoryAccess, audit.ActionLogout).WithDescription("organizer logout"))
}
