// Package audit models the append-only record of recipient fetches,
// announcement sends, and organizer logins.
package audit

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category groups events by the workflow they belong to.
type Category string

const (
	CategoryRecipients Category = "recipients"
	CategoryDispatch   Category = "dispatch"
	CategoryAccess     Category = "access"
)

// Action is what happened.
type Action string

const (
	ActionFetch  Action = "fetch"
	ActionSend   Action = "send"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// MaxListLimit caps how many events one query returns.
const MaxListLimit = 500

// ErrInvalidFilter is returned for unknown filter values.
var ErrInvalidFilter = errors.New("invalid audit filter")

// Event is a single audit log entry.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Category    Category  `json:"category"`
	Action      Action    `json:"action"`
	Severity    Severity  `json:"severity"`
	SessionID   string    `json:"session_id"`
	Description string    `json:"description"`
	IPAddress   string    `json:"ip_address"`
	EgressIP    string    `json:"egress_ip,omitempty"`
	UserAgent   string    `json:"user_agent"`
	Metadata    string    `json:"metadata"`
}

// NewEvent creates an info-level event stamped with the current time.
// PRE: category and action are non-empty
func NewEvent(sessionID string, category Category, action Action) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Category:  category,
		Action:    action,
		Severity:  SeverityInfo,
		SessionID: sessionID,
	}
}

// WithSeverity sets the severity level.
func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

// WithDescription sets the event description.
func (e Event) WithDescription(desc string) Event {
	e.Description = desc
	return e
}

// WithRequest sets the client address and user agent.
func (e Event) WithRequest(ipAddress, userAgent string) Event {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithEgress records the server's public address.
func (e Event) WithEgress(ip string) Event {
	e.EgressIP = ip
	return e
}

// WithMetadata encodes m as the event's JSON metadata.
// Values that cannot be encoded leave the metadata empty.
func (e Event) WithMetadata(m map[string]any) Event {
	if len(m) == 0 {
		e.Metadata = ""
		return e
	}
	b, err := json.Marshal(m)
	if err != nil {
		e.Metadata = ""
		return e
	}
	e.Metadata = string(b)
	return e
}

// Filter narrows an event listing. Zero values match everything.
type Filter struct {
	Category Category
	Action   Action
	Severity Severity
	Limit    int
}

// Validate checks enum values and clamps Limit to (0, MaxListLimit].
func (f Filter) Validate() (Filter, error) {
	switch f.Category {
	case "", CategoryRecipients, CategoryDispatch, CategoryAccess:
	default:
		return f, ErrInvalidFilter
	}
	switch f.Action {
	case "", ActionFetch, ActionSend, ActionLogin, ActionLogout:
	default:
		return f, ErrInvalidFilter
	}
	switch f.Severity {
	case "", SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return f, ErrInvalidFilter
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f, nil
}
