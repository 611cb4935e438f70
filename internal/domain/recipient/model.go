package recipient

import (
	"errors"
)

// Domain errors
var (
	ErrNoRecipientsSelected = errors.New("please select at least one recipient")
)

// Recipient is one entry of the externally managed mailing list.
// The backend owns it; this service only holds the copy from the latest fetch.
type Recipient struct {
	Name   string `json:"name"`
	Email  string `json:"email"` // Unique key
	Dept   string `json:"dept,omitempty"`
	Active bool   `json:"active,omitempty"` // Pre-selected on fetch
	Note   string `json:"note,omitempty"`
}

// Selection maps recipient email to a checked flag.
// Keys keep their insertion order so the outgoing email list is stable.
type Selection struct {
	order   []string
	checked map[string]bool
}

// NewSelection builds the initial selection for a freshly fetched list.
// PRE: list is the complete response of one fetch
// POST: Every active recipient with a non-empty email is checked; nothing else is present
func NewSelection(list []Recipient) *Selection {
	s := &Selection{checked: make(map[string]bool)}
	for _, r := range list {
		if r.Email != "" && r.Active {
			s.Toggle(r.Email, true)
		}
	}
	return s
}

// Toggle sets the checked flag for one email.
// PRE: email is non-empty
// POST: email is present in the selection with the given flag
func (s *Selection) Toggle(email string, on bool) {
	if s.checked == nil {
		s.checked = make(map[string]bool)
	}
	if _, ok := s.checked[email]; !ok {
		s.order = append(s.order, email)
	}
	s.checked[email] = on
}

// ToggleAll sets the flag for every recipient of the given list.
// Entries outside the list are left untouched.
// PRE: list is the currently displayed list
// POST: every non-empty email of list carries the given flag
func (s *Selection) ToggleAll(list []Recipient, on bool) {
	for _, r := range list {
		if r.Email == "" {
			continue
		}
		s.Toggle(r.Email, on)
	}
}

// IsSelected reports whether email is checked.
func (s *Selection) IsSelected(email string) bool {
	if s == nil {
		return false
	}
	return s.checked[email]
}

// AnySelected reports whether at least one recipient of list is checked.
// INVARIANT: Selection is not mutated
func (s *Selection) AnySelected(list []Recipient) bool {
	for _, r := range list {
		if s.IsSelected(r.Email) {
			return true
		}
	}
	return false
}

// Emails returns the checked emails in insertion order.
// INVARIANT: Selection is not mutated
func (s *Selection) Emails() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, len(s.order))
	for _, email := range s.order {
		if s.checked[email] {
			out = append(out, email)
		}
	}
	return out
}

// Count returns the number of checked emails.
func (s *Selection) Count() int {
	return len(s.Emails())
}

// Clone returns an independent copy.
func (s *Selection) Clone() *Selection {
	c := &Selection{checked: make(map[string]bool)}
	if s == nil {
		return c
	}
	c.order = append(c.order, s.order...)
	for k, v := range s.checked {
		c.checked[k] = v
	}
	return c
}

// FromMap builds a selection from a plain map, ordering keys as given.
// Keys of m that are not listed in order are ignored.
func FromMap(order []string, m map[string]bool) *Selection {
	s := &Selection{checked: make(map[string]bool)}
	for _, k := range order {
		if v, ok := m[k]; ok {
			s.Toggle(k, v)
		}
	}
	return s
}
