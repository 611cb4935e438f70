// Package appsscript talks to the spreadsheet-backed scripting endpoint that
// owns the recipient list and performs the actual mail send.
package appsscript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"drinkmailer/internal/adapters/http/perf"
	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/recipient"
)

// Function selectors understood by the endpoint.
const (
	FnGetRecipients = "getRecipients"
	FnSendMail      = "sendmail"
)

// Default user-facing texts.
const (
	DefaultFetchFailed = "failed to load recipients"
	DefaultSendFailed  = "send failed"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

var errNotObject = errors.New("response body is not a JSON object")

// FetchError reports a failed recipient list retrieval.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string { return e.Message }
func (e *FetchError) Unwrap() error { return e.Err }

// SendError reports a send the backend refused, or a transport failure during send.
type SendError struct {
	Message string
	Err     error
}

func (e *SendError) Error() string { return e.Message }
func (e *SendError) Unwrap() error { return e.Err }

// RecipientsResponse is the decoded body of a getRecipients call.
type RecipientsResponse struct {
	List     []recipient.Recipient `json:"list"`
	AllDepts []string              `json:"allDepts"`
}

// sendRequest is the POST body of a sendmail call.
type sendRequest struct {
	Fn      string               `json:"fn"`
	Payload announcement.Payload `json:"payload"`
}

// Client calls the scripting endpoint.
type Client struct {
	base      string
	http      *http.Client
	collector *perf.Collector
}

// NewClient creates a client for the endpoint at base.
// PRE: base is an absolute URL
// POST: Returns a ready client; hc defaults to http.DefaultClient
func NewClient(base string, hc *http.Client, collector *perf.Collector) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid script URL %q", base)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, http: hc, collector: collector}, nil
}

// BuildRecipientsURL constructs the list URL. dept is omitted when empty or
// DeptAll; keyword is omitted when empty. Empty parameters are never sent.
func BuildRecipientsURL(base, dept, keyword string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("fn", FnGetRecipients)
	if dept != "" && dept != announcement.DeptAll {
		q.Set("dept", dept)
	} else {
		q.Del("dept")
	}
	if keyword != "" {
		q.Set("keyword", keyword)
	} else {
		q.Del("keyword")
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// FetchRecipients retrieves the recipient list, optionally filtered.
// PRE: none
// POST: On success List and AllDepts are non-nil; on failure returns *FetchError
func (c *Client) FetchRecipients(ctx context.Context, dept, keyword string) (RecipientsResponse, error) {
	start := time.Now()
	status := 0
	defer func() { c.record(FnGetRecipients, start, status) }()

	u, err := BuildRecipientsURL(c.base, dept, keyword)
	if err != nil {
		return RecipientsResponse{}, &FetchError{Message: DefaultFetchFailed, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return RecipientsResponse{}, &FetchError{Message: DefaultFetchFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		status = perf.StatusTransportError
		slog.Warn("appsscript_fetch_failed", "error", err)
		return RecipientsResponse{}, &FetchError{Message: DefaultFetchFailed + ": request failed", Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RecipientsResponse{}, &FetchError{Message: DefaultFetchFailed + ": could not read response", Err: err}
	}

	var out RecipientsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		slog.Warn("appsscript_fetch_bad_body", "status", resp.StatusCode, "error", err)
		return RecipientsResponse{}, &FetchError{
			Message: fmt.Sprintf("%s: response was not JSON (status %d)", DefaultFetchFailed, resp.StatusCode),
			Err:     err,
		}
	}
	// null decodes without error into the zero value; only an object is a list reply.
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		slog.Warn("appsscript_fetch_bad_body", "status", resp.StatusCode, "error", "not an object")
		return RecipientsResponse{}, &FetchError{
			Message: fmt.Sprintf("%s: response was not a JSON object (status %d)", DefaultFetchFailed, resp.StatusCode),
			Err:     errNotObject,
		}
	}
	if out.List == nil {
		out.List = []recipient.Recipient{}
	}
	if out.AllDepts == nil {
		out.AllDepts = []string{}
	}
	slog.Info("appsscript_event", "event", "recipients_fetched", "count", len(out.List), "depts", len(out.AllDepts))
	return out, nil
}

// SendMail posts the payload with fn=sendmail and interprets the reply.
// Returns the backend's message on success (possibly empty).
// PRE: payload was built from a validated form
// POST: Returns *SendError when the backend reply has a falsy ok or the call fails
func (c *Client) SendMail(ctx context.Context, payload announcement.Payload) (string, error) {
	start := time.Now()
	status := 0
	defer func() { c.record(FnSendMail, start, status) }()

	body, err := json.Marshal(sendRequest{Fn: FnSendMail, Payload: payload})
	if err != nil {
		return "", &SendError{Message: DefaultSendFailed, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return "", &SendError{Message: DefaultSendFailed, Err: err}
	}
	// A plain-text body keeps the request identical to a simple browser POST.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		status = perf.StatusTransportError
		slog.Error("appsscript_send_failed", "error", err)
		return "", &SendError{Message: DefaultSendFailed + ": request failed", Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &SendError{Message: DefaultSendFailed, Err: err}
	}

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		slog.Error("appsscript_send_bad_body", "status", resp.StatusCode, "error", err)
		return "", &SendError{Message: DefaultSendFailed + ": response was not JSON", Err: err}
	}

	msg := messageOf(reply["message"])
	if !truthy(reply["ok"]) {
		if msg == "" {
			msg = DefaultSendFailed
		}
		slog.Warn("appsscript_send_rejected", "message", msg, "recipients", len(payload.Emails))
		return "", &SendError{Message: msg}
	}
	slog.Info("appsscript_event", "event", "mail_sent", "recipients", len(payload.Emails), "bcc", payload.BCCMode)
	return msg, nil
}

func (c *Client) record(fn string, start time.Time, status int) {
	if c.collector == nil {
		return
	}
	c.collector.Record(perf.Entry{
		Kind:       perf.KindUpstream,
		Path:       "appsscript." + fn,
		StatusCode: status,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:  start,
	})
}

// truthy follows JavaScript truthiness for decoded JSON values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// messageOf renders a decoded message value, treating empty and null as absent.
func messageOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		if !truthy(x) {
			return ""
		}
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
