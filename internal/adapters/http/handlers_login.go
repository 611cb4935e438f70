package web

import (
	"errors"
	"net/http"

	"drinkmailer/internal/adapters/http/middleware"
	"drinkmailer/internal/application/orchestrators"
)

type loginPageData struct {
	layoutData
	Error string
}

// handleLoginPage handles GET /login
func (s *server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	if s.AccessHash == "" || (sess != nil && sess.IsOrganizer()) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "login.html", loginPageData{layoutData: s.layout(r, "Organizer sign-in")})
}

// handleLogin handles POST /login
// POST: On success the session is promoted and moved to a fresh cookie token.
// A caller without a session gets one only after the passcode matches.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	err := orchestrators.ExecuteOrganizerLogin(r.Context(), orchestrators.OrganizerLoginInput{
		Passcode: r.FormValue("passcode"),
		Request:  requestMeta(r, sess),
	}, orchestrators.OrganizerLoginDeps{
		AccessHash: s.AccessHash,
		Audit:      s.AuditStore,
	})
	if errors.Is(err, orchestrators.ErrInvalidPasscode) {
		s.render(w, http.StatusUnauthorized, "login.html", loginPageData{
			layoutData: s.layout(r, "Organizer sign-in"),
			Error:      err.Error(),
		})
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}

	token, err := s.Sessions.Promote(middleware.SessionToken(r))
	if errors.Is(err, middleware.ErrNoSession) {
		token, err = s.createOrganizerSession()
	}
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token, s.Secure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) createOrganizerSession() (string, error) {
	fresh, _, err := s.Sessions.Create()
	if err != nil {
		return "", err
	}
	return s.Sessions.Promote(fresh)
}

// handleLogout handles POST /logout
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	orchestrators.ExecuteOrganizerLogout(r.Context(), requestMeta(r, sess), orchestrators.OrganizerLogoutDeps{Audit: s.AuditStore})

	s.Sessions.Delete(middleware.SessionToken(r))
	middleware.ClearSessionCookie(w, s.Secure)
	if s.AccessHash == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
