package orchestrators

import (
	"context"
	"errors"
	"sync"

	"drinkmailer/internal/adapters/appsscript"
	emailAdapter "drinkmailer/internal/adapters/email"
	"drinkmailer/internal/domain/announcement"
	"drinkmailer/internal/domain/audit"
	"drinkmailer/internal/domain/recipient"
)

// fakeFetcher implements RecipientFetcher with a function.
type fakeFetcher struct {
	calls int
	fn    func(dept, keyword string) (appsscript.RecipientsResponse, error)
}

func (f *fakeFetcher) FetchRecipients(_ context.Context, dept, keyword string) (appsscript.RecipientsResponse, error) {
	f.calls++
	return f.fn(dept, keyword)
}

func listing(list ...recipient.Recipient) *fakeFetcher {
	return &fakeFetcher{fn: func(string, string) (appsscript.RecipientsResponse, error) {
		return appsscript.RecipientsResponse{List: list, AllDepts: []string{"Sales", "Ops"}}, nil
	}}
}

// fakeDispatcher implements emailAdapter.Dispatcher and records payloads.
type fakeDispatcher struct {
	payloads []announcement.Payload
	receipt  emailAdapter.Receipt
	err      error
}

func (d *fakeDispatcher) Name() string { return "fake" }

func (d *fakeDispatcher) Dispatch(_ context.Context, p announcement.Payload) (emailAdapter.Receipt, error) {
	d.payloads = append(d.payloads, p)
	return d.receipt, d.err
}

// fakeAudit implements AuditRecorder in memory.
type fakeAudit struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (a *fakeAudit) Save(_ context.Context, e audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, e)
	return nil
}

func (a *fakeAudit) last() audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return audit.Event{}
	}
	return a.events[len(a.events)-1]
}

var errAuditDown = errors.New("audit store unavailable")

var testRequest = RequestMeta{SessionID: "sess-1", IPAddress: "203.0.113.9", UserAgent: "test"}

var (
	alice = recipient.Recipient{Name: "Alice", Email: "alice@example.com", Dept: "Sales", Active: true}
	bob   = recipient.Recipient{Name: "Bob", Email: "bob@example.com", Dept: "Ops"}
	carol = recipient.Recipient{Name: "Carol", Email: "carol@example.com", Dept: "Sales", Active: true}
)
