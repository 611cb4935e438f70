package workflow

import (
	"errors"
	"sync"

	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/recipient"
)

// Status strings shown to the organizer.
const (
	StatusLoading       = "Loading…"
	StatusSending       = "Sending…"
	StatusFetchFailed   = "failed to load recipients"
	StatusSendSucceeded = "send succeeded"
	StatusSendFailed    = "send failed"
)

// Tone classifies the status string for display.
type Tone string

const (
	ToneNone    Tone = ""
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

// Domain errors
var (
	ErrBusy             = errors.New("another request is still in progress")
	ErrUnknownRecipient = errors.New("recipient is not in the current list")
)

// Workflow is the per-session recipient and send state.
// All transitions happen under mu; network calls run between transitions.
type Workflow struct {
	mu sync.Mutex

	recipients []recipient.Recipient
	allDepts   []string
	selection  *recipient.Selection

	dept    string
	keyword string
	bccMode bool

	generation uint64 // latest issued fetch generation
	loading    bool
	sending    bool
	started    bool

	message string
	tone    Tone
}

// New returns an idle workflow with no recipients and BCC mode on.
func New() *Workflow {
	return &Workflow{
		selection: recipient.NewSelection(nil),
		dept:      announcement.DeptAll,
		bccMode:   true,
	}
}

// State is an immutable copy of the workflow for rendering.
type State struct {
	Recipients []recipient.Recipient
	AllDepts   []string
	Selection  *recipient.Selection
	Dept       string
	Keyword    string
	BCCMode    bool
	Generation uint64
	Loading    bool
	Sending    bool
	Message    string
	Tone       Tone
}

// AnySelected reports whether at least one displayed recipient is checked.
func (s State) AnySelected() bool {
	return s.Selection.AnySelected(s.Recipients)
}

// CanSubmit reports whether the submit control is enabled.
func (s State) CanSubmit() bool {
	return !s.Loading && !s.Sending
}

// Snapshot copies the current state.
// INVARIANT: Workflow is not mutated
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := make([]recipient.Recipient, len(w.recipients))
	copy(list, w.recipients)
	depts := make([]string, len(w.allDepts))
	copy(depts, w.allDepts)
	return State{
		Recipients: list,
		AllDepts:   depts,
		Selection:  w.selection.Clone(),
		Dept:       w.dept,
		Keyword:    w.keyword,
		BCCMode:    w.bccMode,
		Generation: w.generation,
		Loading:    w.loading,
		Sending:    w.sending,
		Message:    w.message,
		Tone:       w.tone,
	}
}

// Start marks the initial fetch as issued.
// Returns true only the first time it is called.
func (w *Workflow) Start() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return false
	}
	w.started = true
	return true
}

// BeginFetch enters Loading and issues a new generation.
// PRE: none (concurrent fetches are allowed)
// POST: Returned generation is the latest; message cleared
func (w *Workflow) BeginFetch(dept, keyword string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = true
	w.generation++
	w.loading = true
	w.dept = dept
	w.keyword = keyword
	w.message = ""
	w.tone = ToneNone
	return w.generation
}

// CompleteFetch replaces the list and selection with a successful response.
// Responses from an older generation are discarded.
// PRE: gen was returned by BeginFetch
// POST: Returns false and leaves state untouched when gen is stale
func (w *Workflow) CompleteFetch(gen uint64, list []recipient.Recipient, allDepts []string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return false
	}
	w.recipients = list
	w.allDepts = allDepts
	w.selection = recipient.NewSelection(list)
	w.loading = false
	return true
}

// FailFetch records a failed fetch without touching the previous list.
// PRE: gen was returned by BeginFetch
// POST: Returns false when gen is stale; otherwise Loading ends with an error message
func (w *Workflow) FailFetch(gen uint64, message string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return false
	}
	if message == "" {
		message = StatusFetchFailed
	}
	w.loading = false
	w.message = message
	w.tone = ToneError
	return true
}

// Toggle sets one recipient's checkbox.
// PRE: email belongs to the displayed list
// POST: Returns ErrUnknownRecipient and changes nothing otherwise
func (w *Workflow) Toggle(email string, on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.recipients {
		if r.Email == email && email != "" {
			w.selection.Toggle(email, on)
			return nil
		}
	}
	return ErrUnknownRecipient
}

// ToggleAll sets every currently displayed recipient's checkbox.
func (w *Workflow) ToggleAll(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selection.ToggleAll(w.recipients, on)
}

// ApplyChecked replaces the flags of the displayed list with a posted checkbox set.
// Emails outside the displayed list are ignored.
func (w *Workflow) ApplyChecked(checked []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.applyCheckedLocked(checked)
}

func (w *Workflow) applyCheckedLocked(checked []string) {
	set := make(map[string]bool, len(checked))
	for _, e := range checked {
		set[e] = true
	}
	for _, r := range w.recipients {
		if r.Email == "" {
			continue
		}
		w.selection.Toggle(r.Email, set[r.Email])
	}
}

// SetMessage replaces the status string.
func (w *Workflow) SetMessage(message string, tone Tone) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.message = message
	w.tone = tone
}

// SendOptions are the checkbox values posted together with a submit.
type SendOptions struct {
	// ApplyChecked replaces the displayed checkboxes with Checked.
	ApplyChecked bool
	Checked      []string
	BCCMode      bool
}

// BeginSend enters Sending with the stored selection and returns the selected emails.
// PRE: the form has already been validated
// POST: On success Sending is true and the message is StatusSending.
// Returns ErrBusy while a fetch or send is in flight and
// recipient.ErrNoRecipientsSelected when nothing is checked.
func (w *Workflow) BeginSend() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.beginSendLocked()
}

// BeginSendWith applies opts and enters Sending under one lock.
// PRE: the form has already been validated
// POST: opts change nothing when ErrBusy is returned; otherwise as BeginSend
func (w *Workflow) BeginSendWith(opts SendOptions) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading || w.sending {
		return nil, ErrBusy
	}
	if opts.ApplyChecked {
		w.applyCheckedLocked(opts.Checked)
	}
	w.bccMode = opts.BCCMode
	return w.beginSendLocked()
}

func (w *Workflow) beginSendLocked() ([]string, error) {
	if w.loading || w.sending {
		return nil, ErrBusy
	}
	if !w.selection.AnySelected(w.recipients) {
		w.message = recipient.ErrNoRecipientsSelected.Error()
		w.tone = ToneError
		return nil, recipient.ErrNoRecipientsSelected
	}
	w.sending = true
	w.message = StatusSending
	w.tone = ToneInfo
	return w.selection.Emails(), nil
}

// FinishSend leaves Sending with the outcome message.
// PRE: BeginSend succeeded
// POST: Sending is false
func (w *Workflow) FinishSend(message string, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sending = false
	w.message = message
	if ok {
		w.tone = ToneSuccess
	} else {
		w.tone = ToneError
	}
}
