package announcement

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var fixedDeadline = time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func validForm() Form {
	d := fixedDeadline
	return Form{
		Vendor:   "Milk Shop",
		Link:     "https://order.example.com/g/123",
		Deadline: &d,
		Note:     strPtr("less ice"),
	}
}

// TestForm_Validate_Valid tests that a complete form passes.
func TestForm_Validate_Valid(t *testing.T) {
	if err := validForm().Validate(); err != nil {
		t.Errorf("expected valid form, got: %v", err)
	}
}

// TestForm_Validate_NoteOptional tests that a nil note is accepted.
func TestForm_Validate_NoteOptional(t *testing.T) {
	f := validForm()
	f.Note = nil
	if err := f.Validate(); err != nil {
		t.Errorf("nil note should be valid, got: %v", err)
	}
}

// TestForm_Validate_LinkSurroundingASCIIWhitespace tests that spaces a browser would trim are accepted.
func TestForm_Validate_LinkSurroundingASCIIWhitespace(t *testing.T) {
	f := validForm()
	f.Link = " \thttps://order.example.com/g/123\n"
	if err := f.Validate(); err != nil {
		t.Errorf("expected valid link, got: %v", err)
	}
}

// TestForm_Validate_Fields tests per-field messages.
func TestForm_Validate_Fields(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Form)
		field string
		msg   string
	}{
		{"empty vendor", func(f *Form) { f.Vendor = "" }, FieldVendor, MsgRequired},
		{"empty link", func(f *Form) { f.Link = "" }, FieldLink, MsgRequired},
		{"relative link", func(f *Form) { f.Link = "/just/a/path" }, FieldLink, MsgInvalidURL},
		{"no scheme", func(f *Form) { f.Link = "order.example.com" }, FieldLink, MsgInvalidURL},
		{"garbage link", func(f *Form) { f.Link = "ht tp://bad" }, FieldLink, MsgInvalidURL},
		{"ideographic spaces", func(f *Form) { f.Link = "\u3000https://order.example.com\u3000" }, FieldLink, MsgInvalidURL},
		{"missing deadline", func(f *Form) { f.Deadline = nil }, FieldDeadline, MsgRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mut(&f)
			err := f.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if got := verr.Fields[tt.field]; got != tt.msg {
				t.Errorf("field %s: expected %q, got %q", tt.field, tt.msg, got)
			}
			if !errors.Is(err, ErrInvalidForm) {
				t.Error("expected errors.Is(err, ErrInvalidForm)")
			}
		})
	}
}

// TestForm_Validate_AllFieldsAtOnce tests that every failing field is reported together.
func TestForm_Validate_AllFieldsAtOnce(t *testing.T) {
	err := Form{}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Errorf("expected 3 field errors, got %v", verr.Fields)
	}
	if verr.Error() != "invalid form: deadline: required, link: required, vendor: required" {
		t.Errorf("unexpected message: %s", verr.Error())
	}
}

// TestSanitizeLink tests invisible character stripping and space normalization.
func TestSanitizeLink(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://x.test", "https://x.test"},
		{"\u200bhttps://x.test/a\u200b", "https://x.test/a"},
		{"\ufeffhttps://x.test", "https://x.test"},
		{"\u3000https://x.test\u3000", "https://x.test"},
		{"https://x.test/a\u3000b", "https://x.test/a b"},
		{"  https://x.test \n", "https://x.test"},
	}
	for _, tt := range tests {
		if got := SanitizeLink(tt.in); got != tt.want {
			t.Errorf("SanitizeLink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestBuildPayload tests payload assembly from a validated form.
func TestBuildPayload(t *testing.T) {
	f := validForm()
	f.Link = "\u3000https://order.example.com/g/\u200b123 "
	got := BuildPayload(f, []string{"a@b.com"}, true)
	want := Payload{
		Vendor:   "Milk Shop",
		Link:     "https://order.example.com/g/123",
		Deadline: "2026-03-14T15:30:00.000Z",
		Note:     "less ice",
		Emails:   []string{"a@b.com"},
		BCCMode:  true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

// TestBuildPayload_NilNoteAndEmails tests defaults for absent values.
func TestBuildPayload_NilNoteAndEmails(t *testing.T) {
	f := validForm()
	f.Note = nil
	p := BuildPayload(f, nil, false)
	if p.Note != "" {
		t.Errorf("expected empty note, got %q", p.Note)
	}
	if p.Emails == nil {
		t.Error("expected non-nil emails slice")
	}
}

// TestBuildPayload_DeadlineIsUTC tests that non-UTC deadlines are converted.
func TestBuildPayload_DeadlineIsUTC(t *testing.T) {
	taipei := time.FixedZone("UTC+8", 8*3600)
	d := time.Date(2026, 3, 14, 12, 0, 0, 0, taipei)
	f := validForm()
	f.Deadline = &d
	if got := BuildPayload(f, nil, true).Deadline; got != "2026-03-14T04:00:00.000Z" {
		t.Errorf("expected UTC deadline, got %s", got)
	}
}

// TestPayload_NoLegacyKeys tests that removed fields never appear on the wire.
func TestPayload_NoLegacyKeys(t *testing.T) {
	raw, err := json.Marshal(BuildPayload(validForm(), []string{"a@b.com"}, true))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"pickup", "location"} {
		if _, ok := m[k]; ok {
			t.Errorf("payload must not contain %q", k)
		}
	}
	keys := make(map[string]bool)
	for k := range m {
		keys[k] = true
	}
	want := map[string]bool{"vendor": true, "link": true, "deadline": true, "note": true, "emails": true, "bccMode": true}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("payload keys mismatch (-want +got):\n%s", diff)
	}
}

// TestParseDeadline tests the round trip through the wire format.
func TestParseDeadline(t *testing.T) {
	got, err := ParseDeadline(FormatDeadline(fixedDeadline))
	if err != nil {
		t.Fatalf("ParseDeadline: %v", err)
	}
	if !got.Equal(fixedDeadline) {
		t.Errorf("got %v, want %v", got, fixedDeadline)
	}
	if _, err := ParseDeadline("2026-03-14 15:30"); err == nil {
		t.Error("expected error for non-ISO input")
	}
}
