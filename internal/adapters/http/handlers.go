package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/csrf"

	emailAdapter "drinkmailer/internal/adapters/email"
	"drinkmailer/internal/adapters/http/middleware"
	"drinkmailer/internal/adapters/iplookup"
	"drinkmailer/internal/application/orchestrators"
)

var errNoSession = errors.New("request has no session")

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json_encode_failed", "error", err)
	}
}

// apiError is the JSON error body.
type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, apiError{Error: msg, Fields: fields})
}

// session returns the request's session. The Sessions middleware guarantees one.
func session(r *http.Request) (*middleware.Session, error) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		return nil, errNoSession
	}
	return sess, nil
}

// requestMeta describes the caller for audit events.
func requestMeta(r *http.Request, sess *middleware.Session) orchestrators.RequestMeta {
	ip := iplookup.ForwardedFor(r.Header)
	if ip == iplookup.Unknown {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	meta := orchestrators.RequestMeta{IPAddress: ip, UserAgent: r.UserAgent()}
	if sess != nil {
		meta.SessionID = sess.ID
	}
	return meta
}

// layoutData is shared by every page.
type layoutData struct {
	Title       string
	CSRFToken   string
	GateEnabled bool
	Organizer   bool
}

func (s *server) layout(r *http.Request, title string) layoutData {
	d := layoutData{
		Title:       title,
		CSRFToken:   csrf.Token(r),
		GateEnabled: s.AccessHash != "",
	}
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		d.Organizer = sess.IsOrganizer()
	}
	return d
}

// pageSet holds one parsed template per page, each combined with the layout.
type pageSet struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"noteHTML": func(note string) template.HTML {
		out, err := emailAdapter.NoteHTML(note)
		if err != nil {
			return template.HTML(template.HTMLEscapeString(note))
		}
		return out
	},
}

func mustParsePages() *pageSet {
	ps := &pageSet{pages: make(map[string]*template.Template)}
	for _, name := range []string{"form.html", "login.html"} {
		ps.pages[name] = template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return ps
}

// render executes a page into a buffer so template failures never send a partial page.
func (s *server) render(w http.ResponseWriter, status int, name string, data any) {
	tpl, ok := s.pages.pages[name]
	if !ok {
		internalError(w, errors.New("unknown template "+name))
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
