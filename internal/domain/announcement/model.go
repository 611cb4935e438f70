package announcement

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DeptAll is the department filter value meaning "no filter".
// It is non-empty because select controls cannot carry an empty value.
const DeptAll = "ALL"

// Field names used in validation errors and form posts.
const (
	FieldVendor   = "vendor"
	FieldLink     = "link"
	FieldDeadline = "deadline"
	FieldNote     = "note"
)

// Validation messages
const (
	MsgRequired   = "required"
	MsgInvalidURL = "must be a valid URL"
)

// isoLayout matches the millisecond UTC form produced by browsers' toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z"

// ErrInvalidForm is matched by every *ValidationError via errors.Is.
var ErrInvalidForm = errors.New("announcement form is invalid")

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

// Error lists the offending fields in a stable order.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid form: " + strings.Join(parts, ", ")
}

// Is lets errors.Is(err, ErrInvalidForm) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidForm
}

// Form holds the organizer-entered values.
type Form struct {
	Vendor   string
	Link     string
	Deadline *time.Time // nil until the picker commits a full value
	Note     *string    // optional, nullable
}

// Payload is the body sent to the mail backend under "payload".
// Only these keys are ever emitted.
type Payload struct {
	Vendor   string   `json:"vendor"`
	Link     string   `json:"link"`
	Deadline string   `json:"deadline"`
	Note     string   `json:"note"`
	Emails   []string `json:"emails"`
	BCCMode  bool     `json:"bccMode"`
}

// Validate checks the form against the announcement schema.
// PRE: none
// POST: Returns nil if valid, *ValidationError listing each failing field otherwise
func (f Form) Validate() error {
	fields := make(map[string]string)
	if len(f.Vendor) < 1 {
		fields[FieldVendor] = MsgRequired
	}
	if f.Link == "" {
		fields[FieldLink] = MsgRequired
	} else if !isValidURL(f.Link) {
		fields[FieldLink] = MsgInvalidURL
	}
	if f.Deadline == nil || f.Deadline.IsZero() {
		fields[FieldDeadline] = MsgRequired
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// isValidURL accepts absolute URLs. Surrounding C0 controls and spaces are
// ignored the way URL parsers in browsers ignore them; U+3000 is not.
func isValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimFunc(raw, isC0OrSpace))
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

func isC0OrSpace(r rune) bool { return r <= ' ' }

// linkReplacer strips invisible characters and normalizes ideographic spaces.
var linkReplacer = strings.NewReplacer(
	"\u200b", "",
	"\ufeff", "",
	"\u3000", " ",
)

// SanitizeLink cleans a pasted link before it is sent.
// POST: no U+200B or U+FEFF remain, U+3000 became U+0020, surrounding whitespace trimmed
func SanitizeLink(link string) string {
	return strings.TrimSpace(linkReplacer.Replace(link))
}

// FormatDeadline renders t as an ISO-8601 UTC string with milliseconds.
func FormatDeadline(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseDeadline is the inverse of FormatDeadline.
func ParseDeadline(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// BuildPayload assembles the send payload from a validated form.
// PRE: f.Validate() returned nil
// POST: Link is sanitized, Note is "" when absent, Emails is non-nil
func BuildPayload(f Form, emails []string, bccMode bool) Payload {
	p := Payload{
		Vendor:  f.Vendor,
		Link:    SanitizeLink(f.Link),
		Emails:  emails,
		BCCMode: bccMode,
	}
	if f.Deadline != nil {
		p.Deadline = FormatDeadline(*f.Deadline)
	}
	if f.Note != nil {
		p.Note = *f.Note
	}
	if p.Emails == nil {
		p.Emails = []string{}
	}
	return p
}
