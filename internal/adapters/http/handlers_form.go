package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"drinkmailer/internal/adapters/appsscript"
	"drinkmailer/internal/adapters/http/middleware"
	"drinkmailer/internal/application/orchestrators"
	"drinkmailer/internal/application/projections"
	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/recipient"
	"drinkmailer/internal/domain/workflow"
)

const deadlinePlaceholder = "Pick a date and time"

// formDraft echoes what the organizer typed so a re-rendered page keeps it.
type formDraft struct {
	Vendor        string
	Link          string
	Date          string
	Clock         string
	Note          string
	DeadlineLabel string
	Errors        map[string]string
}

type formPageData struct {
	layoutData
	View  projections.FormView
	Draft formDraft
}

func (s *server) newDraft() formDraft {
	p := announcement.NewDeadlinePicker(s.Location, nil)
	return formDraft{Clock: p.Clock(), DeadlineLabel: p.Label(deadlinePlaceholder)}
}

func (s *server) renderForm(w http.ResponseWriter, r *http.Request, status int, sess *middleware.Session, draft formDraft) {
	s.render(w, status, "form.html", formPageData{
		layoutData: s.layout(r, "Drink order announcement"),
		View: projections.QueryFormView(r.Context(), projections.FormViewQuery{
			Workflow:  sess.Workflow,
			Organizer: sess.IsOrganizer(),
		}),
		Draft: draft,
	})
}

// fetch runs the recipient fetch for the session. Errors end up in the workflow message.
func (s *server) fetch(ctx context.Context, r *http.Request, sess *middleware.Session, dept, keyword string) (orchestrators.FetchRecipientsResult, error) {
	return orchestrators.ExecuteFetchRecipients(ctx, orchestrators.FetchRecipientsInput{
		Workflow: sess.Workflow,
		Dept:     dept,
		Keyword:  keyword,
		Request:  requestMeta(r, sess),
	}, orchestrators.FetchRecipientsDeps{
		Fetcher: s.Fetcher,
		Audit:   s.AuditStore,
	})
}

// handleFormPage handles GET /
// POST: The first visit of a session loads the unfiltered list before rendering
func (s *server) handleFormPage(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	if sess.Workflow.Start() {
		_, _ = s.fetch(r.Context(), r, sess, announcement.DeptAll, "")
	}
	s.renderForm(w, r, http.StatusOK, sess, s.newDraft())
}

// handleFilter handles POST /recipients/filter
func (s *server) handleFilter(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	_, _ = s.fetch(r.Context(), r, sess, r.FormValue("dept"), strings.TrimSpace(r.FormValue("keyword")))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSelectAll handles POST /selection/all
func (s *server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	orchestrators.ExecuteToggleAll(r.Context(), orchestrators.ToggleAllInput{
		Workflow: sess.Workflow,
		On:       r.FormValue("on") == "true",
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleToggle handles POST /selection/toggle
func (s *server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	err = orchestrators.ExecuteToggleRecipient(r.Context(), orchestrators.ToggleRecipientInput{
		Workflow: sess.Workflow,
		Email:    r.FormValue("email"),
		On:       r.FormValue("on") == "true",
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSend handles POST /send
// POST: The page is re-rendered with the posted values, whatever the outcome
func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	picker := announcement.NewDeadlinePicker(s.Location, nil)
	picker.SelectDate(r.FormValue("deadline_date"))
	picker.SetTime(r.FormValue("deadline_time"))

	draft := formDraft{
		Vendor:        r.FormValue("vendor"),
		Link:          r.FormValue("link"),
		Date:          picker.Date(),
		Clock:         picker.Clock(),
		Note:          r.FormValue("note"),
		DeadlineLabel: picker.Label(deadlinePlaceholder),
	}
	form := announcement.Form{
		Vendor:   draft.Vendor,
		Link:     draft.Link,
		Deadline: picker.Value(),
	}
	if draft.Note != "" {
		form.Note = &draft.Note
	}

	_, err = orchestrators.ExecuteSubmitAnnouncement(r.Context(), orchestrators.SubmitAnnouncementInput{
		Workflow:     sess.Workflow,
		Form:         form,
		BCCMode:      r.FormValue("bcc") != "",
		ApplyChecked: true,
		Checked:      r.Form["selected"],
		Request:      requestMeta(r, sess),
	}, s.submitDeps())

	status := http.StatusOK
	var ve *announcement.ValidationError
	var se *appsscript.SendError
	switch {
	case err == nil:
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		draft.Errors = ve.Fields
	case errors.Is(err, recipient.ErrNoRecipientsSelected):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrBusy):
		status = http.StatusConflict
		sess.Workflow.SetMessage(err.Error(), workflow.ToneError)
	case errors.As(err, &se):
		status = http.StatusBadGateway
	default:
		slog.Error("send_unexpected_error", "error", err)
		status = http.StatusInternalServerError
	}
	s.renderForm(w, r, status, sess, draft)
}

func (s *server) submitDeps() orchestrators.SubmitAnnouncementDeps {
	return orchestrators.SubmitAnnouncementDeps{
		Dispatcher: s.Dispatcher,
		Audit:      s.AuditStore,
		EgressIP:   s.EgressIP(),
	}
}
