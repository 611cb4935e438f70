package projections

import (
	"context"

	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/workflow"
)

// AllDeptsLabel is the display text of the sentinel department option.
const AllDeptsLabel = "All departments"

// FormViewQuery carries query parameters.
type FormViewQuery struct {
	Workflow  *workflow.Workflow
	Organizer bool
}

// RecipientRow is one line of the recipient table.
type RecipientRow struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Dept     string `json:"dept,omitempty"`
	Note     string `json:"note,omitempty"`
	Selected bool   `json:"selected"`
}

// DeptOption is one entry of the department dropdown.
type DeptOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// FormView is the render model of the announcement page and the JSON state.
type FormView struct {
	Recipients    []RecipientRow `json:"recipients"`
	Depts         []DeptOption   `json:"depts"`
	Dept          string         `json:"dept"`
	Keyword       string         `json:"keyword"`
	BCCMode       bool           `json:"bccMode"`
	Generation    uint64         `json:"generation"`
	Loading       bool           `json:"loading"`
	Sending       bool           `json:"sending"`
	Message       string         `json:"message"`
	Tone          string         `json:"tone"`
	AllSelected   bool           `json:"allSelected"`
	AnySelected   bool           `json:"anySelected"`
	SelectedCount int            `json:"selectedCount"`
	CanSubmit     bool           `json:"canSubmit"`
	Organizer     bool           `json:"organizer"`
}

// QueryFormView projects the session workflow into a view model.
// PRE: Workflow is non-nil
// POST: Recipients keep backend order; Depts starts with the sentinel option.
// A loading workflow without a message shows workflow.StatusLoading.
// INVARIANT: Workflow is not mutated
func QueryFormView(_ context.Context, query FormViewQuery) FormView {
	st := query.Workflow.Snapshot()

	rows := make([]RecipientRow, 0, len(st.Recipients))
	selected := 0
	for _, r := range st.Recipients {
		on := st.Selection.IsSelected(r.Email)
		if on {
			selected++
		}
		rows = append(rows, RecipientRow{
			Name:     r.Name,
			Email:    r.Email,
			Dept:     r.Dept,
			Note:     r.Note,
			Selected: on,
		})
	}

	depts := make([]DeptOption, 0, len(st.AllDepts)+1)
	depts = append(depts, DeptOption{
		Value:    announcement.DeptAll,
		Label:    AllDeptsLabel,
		Selected: st.Dept == "" || st.Dept == announcement.DeptAll,
	})
	for _, d := range st.AllDepts {
		if d == "" || d == announcement.DeptAll {
			continue
		}
		depts = append(depts, DeptOption{Value: d, Label: d, Selected: d == st.Dept})
	}

	msg, tone := st.Message, st.Tone
	if st.Loading && msg == "" {
		msg, tone = workflow.StatusLoading, workflow.ToneInfo
	}

	return FormView{
		Recipients:    rows,
		Depts:         depts,
		Dept:          st.Dept,
		Keyword:       st.Keyword,
		BCCMode:       st.BCCMode,
		Generation:    st.Generation,
		Loading:       st.Loading,
		Sending:       st.Sending,
		Message:       msg,
		Tone:          string(tone),
		AllSelected:   len(rows) > 0 && selected == len(rows),
		AnySelected:   selected > 0,
		SelectedCount: selected,
		CanSubmit:     st.CanSubmit(),
		Organizer:     query.Organizer,
	}
}
