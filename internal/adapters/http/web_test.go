package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"drinkmailer/internal/adapters/appsscript"
	emailAdapter "drinkmailer/internal/adapters/email"
	"drinkmailer/internal/adapters/http/middleware"
	"drinkmailer/internal/adapters/http/perf"
	"drinkmailer/internal/adapters/storage"
	auditStore "drinkmailer/internal/adapters/storage/audit"
	"drinkmailer/internal/domain/recipient"
)

// fakeUpstream plays the script endpoint.
type fakeUpstream struct {
	mu        sync.Mutex
	list      []recipient.Recipient
	depts     []string
	rawList   string // overrides list when set
	sendReply string
	queries   []url.Values
	sends     []string
	sendTypes []string
}

func (u *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if r.Method == http.MethodGet {
		u.queries = append(u.queries, r.URL.Query())
		if u.rawList != "" {
			io.WriteString(w, u.rawList)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"list": u.list, "allDepts": u.depts})
		return
	}
	body, _ := io.ReadAll(r.Body)
	u.sends = append(u.sends, string(body))
	u.sendTypes = append(u.sendTypes, r.Header.Get("Content-Type"))
	io.WriteString(w, u.sendReply)
}

func (u *fakeUpstream) lastQuery() url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.queries) == 0 {
		return nil
	}
	return u.queries[len(u.queries)-1]
}

func (u *fakeUpstream) fetchCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.queries)
}

func (u *fakeUpstream) sent(i int) (body, contentType string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sends[i], u.sendTypes[i]
}

func (u *fakeUpstream) setReplies(rawList, sendReply string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if rawList != "" {
		u.rawList = rawList
	}
	if sendReply != "" {
		u.sendReply = sendReply
	}
}

func (u *fakeUpstream) sendCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.sends)
}

type testApp struct {
	server   *httptest.Server
	client   *http.Client
	upstream *fakeUpstream
	audit    *auditStore.SQLiteStore
	perf     *perf.Collector
	sessions *middleware.SessionStore
}

type appOption func(*Deps)

func withAccessHash(t *testing.T, passcode string) appOption {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return func(d *Deps) { d.AccessHash = string(hash) }
}

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()
	up := &fakeUpstream{
		list: []recipient.Recipient{
			{Name: "Alice", Email: "alice@example.com", Dept: "Sales", Active: true},
			{Name: "Bob", Email: "bob@example.com", Dept: "Ops"},
		},
		depts:     []string{"Sales", "Ops"},
		sendReply: `{"ok":true,"message":"Sent to 1 recipient"}`,
	}
	upstreamSrv := httptest.NewServer(up)
	t.Cleanup(upstreamSrv.Close)

	collector := perf.NewCollector(256)
	client, err := appsscript.NewClient(upstreamSrv.URL+"/exec", upstreamSrv.Client(), collector)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	db, err := storage.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	audit := auditStore.NewSQLiteStore(storage.NewTimedDB(db, collector, 0))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deps := Deps{
		Fetcher:    client,
		Dispatcher: emailAdapter.NewAppsScriptDispatcher(client),
		AuditStore: audit,
		Sessions:   middleware.NewSessionStore(),
		Perf:       collector,
		Location:   time.UTC,
		EgressIP:   func() string { return "198.51.100.1" },
		Ping:       db.PingContext,
		CSRFKey:    []byte("0123456789abcdef0123456789abcdef"),
		RateLimit:  1000,
	}
	for _, o := range opts {
		o(&deps)
	}
	srv := httptest.NewServer(NewMux(ctx, deps))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testApp{
		server:   srv,
		upstream: up,
		audit:    audit,
		perf:     collector,
		sessions: deps.Sessions,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (a *testApp) do(t *testing.T, method, path, contentType, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func (a *testApp) getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, body := a.do(t, http.MethodGet, path, "", "")
	if v != nil {
		if err := json.Unmarshal([]byte(body), v); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, body)
		}
	}
	return resp.StatusCode
}

func (a *testApp) postJSON(t *testing.T, path, body string, v any) int {
	t.Helper()
	resp, raw := a.do(t, http.MethodPost, path, "application/json", body)
	if v != nil {
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, raw)
		}
	}
	return resp.StatusCode
}

var csrfField = regexp.MustCompile(`name="gorilla.csrf.Token" value="([^"]+)"`)

// csrfToken loads a page and extracts the form token.
func (a *testApp) csrfToken(t *testing.T, path string) string {
	t.Helper()
	_, body := a.do(t, http.MethodGet, path, "", "")
	m := csrfField.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no CSRF token on %s", path)
	}
	return m[1]
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	return a.do(t, http.MethodPost, path, "application/x-www-form-urlencoded", form.Encode())
}

type stateBody struct {
	Recipients []struct {
		Email    string `json:"email"`
		Selected bool   `json:"selected"`
	} `json:"recipients"`
	Dept        string `json:"dept"`
	Keyword     string `json:"keyword"`
	Message     string `json:"message"`
	Tone        string `json:"tone"`
	AnySelected bool   `json:"anySelected"`
	BCCMode     bool   `json:"bccMode"`
}

func (s stateBody) selected() []string {
	out := []string{}
	for _, r := range s.Recipients {
		if r.Selected {
			out = append(out, r.Email)
		}
	}
	return out
}

// TestFormPage_InitialFetch tests that the first visit loads the unfiltered list.
func TestFormPage_InitialFetch(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.do(t, http.MethodGet, "/", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{"alice@example.com", "bob@example.com", "All departments", `value="12:00"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	q := app.upstream.lastQuery()
	if diff := cmp.Diff(url.Values{"fn": {"getRecipients"}}, q); diff != "" {
		t.Errorf("initial query mismatch (-want +got):\n%s", diff)
	}
	if resp.Header.Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}

	// A second visit reuses the session and does not refetch.
	app.do(t, http.MethodGet, "/", "", "")
	if n := app.upstream.fetchCount(); n != 1 {
		t.Errorf("upstream fetches = %d, want 1", n)
	}
}

// TestAPIRecipients tests query building through the API.
func TestAPIRecipients(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		query url.Values
	}{
		{"dept and keyword", "/api/recipients?dept=Sales&keyword=al", url.Values{"fn": {"getRecipients"}, "dept": {"Sales"}, "keyword": {"al"}}},
		{"all sentinel omitted", "/api/recipients?dept=ALL", url.Values{"fn": {"getRecipients"}}},
		{"blank keyword omitted", "/api/recipients?dept=Ops&keyword=+", url.Values{"fn": {"getRecipients"}, "dept": {"Ops"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			var st stateBody
			if code := app.getJSON(t, tt.path, &st); code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			if diff := cmp.Diff(tt.query, app.upstream.lastQuery()); diff != "" {
				t.Errorf("query mismatch (-want +got):\n%s", diff)
			}
			if len(st.Recipients) != 2 {
				t.Errorf("recipients = %d, want 2", len(st.Recipients))
			}
		})
	}
}

// TestAPIRecipients_UpstreamFailure tests a non-JSON reply.
func TestAPIRecipients_UpstreamFailure(t *testing.T) {
	app := newTestApp(t)
	app.upstream.setReplies("<html>maintenance</html>", "")

	var body apiError
	if code := app.getJSON(t, "/api/recipients", &body); code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
	if !strings.Contains(body.Error, "failed to load recipients") {
		t.Errorf("error = %q", body.Error)
	}
	var st stateBody
	app.getJSON(t, "/api/state", &st)
	if st.Tone != "error" || st.Message == "" {
		t.Errorf("state should carry the error, got %+v", st)
	}
}

// TestAPIRecipients_NullBodyKeepsList tests that a null reply leaves the loaded list alone.
func TestAPIRecipients_NullBodyKeepsList(t *testing.T) {
	app := newTestApp(t)
	var before stateBody
	if code := app.getJSON(t, "/api/recipients", &before); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	app.upstream.setReplies("null", "")
	if code := app.getJSON(t, "/api/recipients?dept=Ops", nil); code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
	var after stateBody
	app.getJSON(t, "/api/state", &after)
	if len(after.Recipients) != 2 {
		t.Errorf("recipients = %d, want the previous 2", len(after.Recipients))
	}
	if diff := cmp.Diff(before.selected(), after.selected()); diff != "" {
		t.Errorf("selection changed (-before +after):\n%s", diff)
	}
	if after.Tone != "error" {
		t.Errorf("tone = %q, want error", after.Tone)
	}
}

// TestAPISelection tests toggle-one and toggle-all.
func TestAPISelection(t *testing.T) {
	app := newTestApp(t)
	app.getJSON(t, "/api/recipients", nil)

	var st stateBody
	if code := app.postJSON(t, "/api/selection", `{"email":"bob@example.com","on":true}`, &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if diff := cmp.Diff([]string{"alice@example.com", "bob@example.com"}, st.selected()); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}

	if code := app.postJSON(t, "/api/selection/all", `{"on":false}`, &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if st.AnySelected {
		t.Error("expected nothing selected")
	}

	if code := app.postJSON(t, "/api/selection", `{"email":"mallory@example.com","on":true}`, nil); code != http.StatusBadRequest {
		t.Errorf("unknown recipient status = %d, want 400", code)
	}
	if code := app.postJSON(t, "/api/selection", `{"email":"bob@example.com","extra":1}`, nil); code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", code)
	}
}

// TestAPISend_Success tests the outgoing request shape and the reply.
func TestAPISend_Success(t *testing.T) {
	app := newTestApp(t)
	app.getJSON(t, "/api/recipients", nil)

	var res sendResponse
	code := app.postJSON(t, "/api/send", `{"vendor":"Tea House","link":"https://order.example/x\u200b","deadline":"2026-03-14T12:30:00+08:00","bccMode":false}`, &res)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !res.OK || res.Message != "Sent to 1 recipient" || res.Provider != "appsscript" || res.Recipients != 1 {
		t.Errorf("unexpected response %+v", res)
	}

	if app.upstream.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1", app.upstream.sendCount())
	}
	var sent struct {
		Fn      string         `json:"fn"`
		Payload map[string]any `json:"payload"`
	}
	raw, ct := app.upstream.sent(0)
	if err := json.Unmarshal([]byte(raw), &sent); err != nil {
		t.Fatalf("decode send body: %v", err)
	}
	want := map[string]any{
		"vendor":   "Tea House",
		"link":     "https://order.example/x",
		"deadline": "2026-03-14T04:30:00.000Z",
		"note":     "",
		"emails":   []any{"alice@example.com"},
		"bccMode":  false,
	}
	if sent.Fn != "sendmail" {
		t.Errorf("fn = %q", sent.Fn)
	}
	if diff := cmp.Diff(want, sent.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if ct != "text/plain;charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	var st stateBody
	app.getJSON(t, "/api/state", &st)
	if st.Message != "Sent to 1 recipient" || st.Tone != "success" || st.BCCMode {
		t.Errorf("unexpected state %+v", st)
	}
}

// TestAPISend_Errors tests each rejection path.
func TestAPISend_Errors(t *testing.T) {
	valid := `{"vendor":"Tea House","link":"https://order.example","deadline":"2026-03-14T12:30:00Z"}`
	tests := []struct {
		name      string
		prepare   func(*testing.T, *testApp)
		body      string
		wantCode  int
		wantError string
		wantField string
	}{
		{"missing fields", nil, `{"vendor":"","link":"nope"}`, http.StatusBadRequest, "announcement form is invalid", "vendor"},
		{"bad deadline", nil, `{"vendor":"A","link":"https://a.example","deadline":"tomorrow"}`, http.StatusBadRequest, "announcement form is invalid", "deadline"},
		{"nothing selected", func(t *testing.T, a *testApp) {
			a.postJSON(t, "/api/selection/all", `{"on":false}`, nil)
		}, valid, http.StatusBadRequest, "please select at least one recipient", ""},
		{"backend refusal", func(_ *testing.T, a *testApp) {
			a.upstream.setReplies("", `{"ok":0,"message":"quota exceeded"}`)
		}, valid, http.StatusBadGateway, "quota exceeded", ""},
		{"backend refusal without message", func(_ *testing.T, a *testApp) {
			a.upstream.setReplies("", `{"ok":false}`)
		}, valid, http.StatusBadGateway, "send failed", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			app.getJSON(t, "/api/recipients", nil)
			if tt.prepare != nil {
				tt.prepare(t, app)
			}
			sendsBefore := app.upstream.sendCount()

			var body apiError
			if code := app.postJSON(t, "/api/send", tt.body, &body); code != tt.wantCode {
				t.Fatalf("status = %d, want %d", code, tt.wantCode)
			}
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
			if tt.wantField != "" && body.Fields[tt.wantField] == "" {
				t.Errorf("fields %v missing %q", body.Fields, tt.wantField)
			}
			if tt.wantCode == http.StatusBadRequest && app.upstream.sendCount() != sendsBefore {
				t.Error("rejected submissions must not reach the backend")
			}
		})
	}
}

// TestHTMLSend tests the form post with CSRF, re-rendering, and field errors.
func TestHTMLSend(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken(t, "/")

	resp, body := app.postForm(t, "/send", url.Values{
		"gorilla.csrf.Token": {token},
		"vendor":             {""},
		"link":               {"https://order.example"},
		"deadline_date":      {"2026-03-14"},
		"deadline_time":      {"12"},
		"selected":           {"alice@example.com"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(body, `value="https://order.example"`) {
		t.Error("posted link should be echoed back")
	}
	if strings.Count(body, `class="field-error"`) != 2 {
		t.Errorf("expected vendor and deadline errors in page")
	}
	if app.upstream.sendCount() != 0 {
		t.Error("invalid form must not be sent")
	}

	resp, body = app.postForm(t, "/send", url.Values{
		"gorilla.csrf.Token": {token},
		"vendor":             {"Tea House"},
		"link":               {"https://order.example"},
		"deadline_date":      {"2026-03-14"},
		"deadline_time":      {"09:15"},
		"note":               {"**less** ice"},
		"bcc":                {"on"},
		"selected":           {"bob@example.com"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "Sent to 1 recipient") {
		t.Error("success message missing")
	}
	if !strings.Contains(body, "<strong>less</strong>") {
		t.Error("note preview should render Markdown")
	}
	if sent, _ := app.upstream.sent(0); !strings.Contains(sent, `"emails":["bob@example.com"]`) {
		t.Errorf("posted checkboxes should drive the send, got %s", sent)
	}
}

// TestHTMLForms_RequireCSRF tests that form posts without a token are rejected.
func TestHTMLForms_RequireCSRF(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodGet, "/", "", "")

	resp, _ := app.postForm(t, "/selection/all", url.Values{"on": {"true"}})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

// TestHTMLFilterAndSelection tests the redirecting form endpoints.
func TestHTMLFilterAndSelection(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken(t, "/")

	resp, _ := app.postForm(t, "/recipients/filter", url.Values{"gorilla.csrf.Token": {token}, "dept": {"Ops"}, "keyword": {" bo "}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("filter: status = %d location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if diff := cmp.Diff(url.Values{"fn": {"getRecipients"}, "dept": {"Ops"}, "keyword": {"bo"}}, app.upstream.lastQuery()); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	app.postForm(t, "/selection/all", url.Values{"gorilla.csrf.Token": {token}, "on": {"true"}})
	app.postForm(t, "/selection/toggle", url.Values{"gorilla.csrf.Token": {token}, "email": {"alice@example.com"}, "on": {"false"}})

	var st stateBody
	app.getJSON(t, "/api/state", &st)
	if diff := cmp.Diff([]string{"bob@example.com"}, st.selected()); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if st.Dept != "Ops" || st.Keyword != "bo" {
		t.Errorf("filter not kept: %+v", st)
	}
}

// TestGetIP tests the forwarded-for reader.
func TestGetIP(t *testing.T) {
	app := newTestApp(t)
	tests := []struct {
		header string
		want   string
	}{
		{"203.0.113.5, 10.0.0.1", "203.0.113.5"},
		{" 203.0.113.6 ", "203.0.113.6"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/get-ip", nil)
		if tt.header != "" {
			req.Header.Set("X-Forwarded-For", tt.header)
		}
		resp, err := app.client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if body["ip"] != tt.want {
			t.Errorf("header %q: ip = %q, want %q", tt.header, body["ip"], tt.want)
		}
	}
}

// TestOrganizerGate tests the login flow.
func TestOrganizerGate(t *testing.T) {
	app := newTestApp(t, withAccessHash(t, "cold-brew"))

	resp, _ := app.do(t, http.MethodGet, "/", "", "")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("ungated page: status = %d location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if code := app.getJSON(t, "/api/state", nil); code != http.StatusUnauthorized {
		t.Errorf("api status = %d, want 401", code)
	}

	token := app.csrfToken(t, "/login")
	resp, _ = app.postForm(t, "/login", url.Values{"gorilla.csrf.Token": {token}, "passcode": {"wrong"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong passcode status = %d, want 401", resp.StatusCode)
	}

	resp, _ = app.postForm(t, "/login", url.Values{"gorilla.csrf.Token": {token}, "passcode": {"cold-brew"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("login: status = %d location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, body := app.do(t, http.MethodGet, "/", "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Sign out") {
		t.Errorf("organizer page: status = %d", resp.StatusCode)
	}

	token = app.csrfToken(t, "/")
	resp, _ = app.postForm(t, "/logout", url.Values{"gorilla.csrf.Token": {token}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("logout: status = %d location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if code := app.getJSON(t, "/api/state", nil); code != http.StatusUnauthorized {
		t.Errorf("after logout api status = %d, want 401", code)
	}
}

// TestOrganizerGate_NoSessionsForGuests tests that turned-away traffic stores nothing.
func TestOrganizerGate_NoSessionsForGuests(t *testing.T) {
	app := newTestApp(t, withAccessHash(t, "cold-brew"))

	for i := 0; i < 50; i++ {
		resp, err := http.Get(app.server.URL + "/")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.Request.URL.Path != "/login" {
			t.Fatalf("guest ended at %s, want /login", resp.Request.URL.Path)
		}
	}
	for _, path := range []string{"/api/state", "/api/get-ip"} {
		resp, err := http.Get(app.server.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	if n := app.sessions.Len(); n != 0 {
		t.Errorf("stored sessions = %d, want 0", n)
	}

	token := app.csrfToken(t, "/login")
	resp, _ := app.postForm(t, "/login", url.Values{"gorilla.csrf.Token": {token}, "passcode": {"cold-brew"}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	if n := app.sessions.Len(); n != 1 {
		t.Errorf("stored sessions after login = %d, want 1", n)
	}
}

// TestAPIAudit tests audit listing and filter validation.
func TestAPIAudit(t *testing.T) {
	app := newTestApp(t)
	app.getJSON(t, "/api/recipients", nil)
	app.postJSON(t, "/api/send", `{"vendor":"Tea House","link":"https://order.example","deadline":"2026-03-14T12:30:00Z"}`, nil)

	var body struct {
		Events []struct {
			Category string `json:"category"`
			Action   string `json:"action"`
			EgressIP string `json:"egress_ip"`
		} `json:"events"`
		Count int `json:"count"`
	}
	if code := app.getJSON(t, "/api/audit?category=dispatch", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Count != 1 || body.Events[0].Action != "send" || body.Events[0].EgressIP != "198.51.100.1" {
		t.Errorf("unexpected events %+v", body)
	}
	if code := app.getJSON(t, "/api/audit?category=billing", nil); code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", code)
	}
	if code := app.getJSON(t, "/api/audit?limit=x", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", code)
	}
}

// TestDebugPerfAndHealthz tests the operational endpoints.
func TestDebugPerfAndHealthz(t *testing.T) {
	app := newTestApp(t)
	app.getJSON(t, "/api/recipients", nil)

	var snap perf.Snapshot
	if code := app.getJSON(t, "/debug/perf", &snap); code != http.StatusOK {
		t.Fatalf("perf status = %d", code)
	}
	if snap.TotalRecorded == 0 || len(snap.SlowestUpstream) == 0 {
		t.Errorf("expected recorded requests and upstream calls, got %+v", snap)
	}

	var health map[string]string
	if code := app.getJSON(t, "/healthz", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("healthz = %d %v", code, health)
	}
}
