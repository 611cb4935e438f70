package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"drinkmailer/internal/adapters/appsscript"
	"drinkmailer/internal/adapters/http/middleware"
	"drinkmailer/internal/application/orchestrators"
	"drinkmailer/internal/application/projections"
	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/recipient"
	"drinkmailer/internal/domain/workflow"
)

func (s *server) stateOf(r *http.Request, sess *middleware.Session) projections.FormView {
	return projections.QueryFormView(r.Context(), projections.FormViewQuery{
		Workflow:  sess.Workflow,
		Organizer: sess.IsOrganizer(),
	})
}

// handleAPIState handles GET /api/state
func (s *server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateOf(r, sess))
}

// handleAPIRecipients handles GET /api/recipients?dept=&keyword=
func (s *server) handleAPIRecipients(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	q := r.URL.Query()
	if _, err := s.fetch(r.Context(), r, sess, q.Get("dept"), strings.TrimSpace(q.Get("keyword"))); err != nil {
		msg := workflow.StatusFetchFailed
		var fe *appsscript.FetchError
		if errors.As(err, &fe) {
			msg = fe.Message
		}
		writeJSONError(w, http.StatusBadGateway, msg, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.stateOf(r, sess))
}

type toggleRequest struct {
	Email string `json:"email"`
	On    bool   `json:"on"`
}

// handleAPIToggle handles POST /api/selection
func (s *server) handleAPIToggle(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	var req toggleRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}
	err = orchestrators.ExecuteToggleRecipient(r.Context(), orchestrators.ToggleRecipientInput{
		Workflow: sess.Workflow,
		Email:    req.Email,
		On:       req.On,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.stateOf(r, sess))
}

type toggleAllRequest struct {
	On bool `json:"on"`
}

// handleAPISelectAll handles POST /api/selection/all
func (s *server) handleAPISelectAll(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	var req toggleAllRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}
	orchestrators.ExecuteToggleAll(r.Context(), orchestrators.ToggleAllInput{Workflow: sess.Workflow, On: req.On})
	writeJSON(w, http.StatusOK, s.stateOf(r, sess))
}

type sendRequest struct {
	Vendor   string  `json:"vendor"`
	Link     string  `json:"link"`
	Deadline string  `json:"deadline"` // RFC 3339
	Note     *string `json:"note"`
	BCCMode  *bool   `json:"bccMode"` // nil keeps the session setting
}

type sendResponse struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message"`
	Provider   string `json:"provider"`
	Recipients int    `json:"recipients"`
}

// handleAPISend handles POST /api/send
func (s *server) handleAPISend(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		internalError(w, err)
		return
	}
	var req sendRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}

	form := announcement.Form{Vendor: req.Vendor, Link: req.Link, Note: req.Note}
	if req.Deadline != "" {
		t, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, announcement.ErrInvalidForm.Error(),
				map[string]string{announcement.FieldDeadline: "must be an RFC 3339 date-time"})
			return
		}
		form.Deadline = &t
	}
	bcc := sess.Workflow.Snapshot().BCCMode
	if req.BCCMode != nil {
		bcc = *req.BCCMode
	}

	res, err := orchestrators.ExecuteSubmitAnnouncement(r.Context(), orchestrators.SubmitAnnouncementInput{
		Workflow: sess.Workflow,
		Form:     form,
		BCCMode:  bcc,
		Request:  requestMeta(r, sess),
	}, s.submitDeps())

	var ve *announcement.ValidationError
	var se *appsscript.SendError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sendResponse{
			OK:         true,
			Message:    res.Message,
			Provider:   res.Receipt.Provider,
			Recipients: res.Receipt.Recipients,
		})
	case errors.As(err, &ve):
		writeJSONError(w, http.StatusBadRequest, announcement.ErrInvalidForm.Error(), ve.Fields)
	case errors.Is(err, recipient.ErrNoRecipientsSelected):
		writeJSONError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, workflow.ErrBusy):
		writeJSONError(w, http.StatusConflict, err.Error(), nil)
	case errors.As(err, &se):
		writeJSONError(w, http.StatusBadGateway, se.Message, nil)
	default:
		slog.Error("send_unexpected_error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}
