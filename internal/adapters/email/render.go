package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"drinkmailer/internal/domain/announcement"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// NoteHTML renders a Markdown note. Raw HTML in the note is not passed through.
func NoteHTML(note string) (template.HTML, error) {
	if strings.TrimSpace(note) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(note), &buf); err != nil {
		return "", fmt.Errorf("render note: %w", err)
	}
	return template.HTML(buf.String()), nil
}

var messageTmpl = template.Must(template.New("announcement").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>{{.Vendor}}</h2>
<p>Order here: <a href="{{.Link}}">{{.Link}}</a></p>
<p>Order by <strong>{{.Deadline}}</strong></p>
{{if .Note}}<div>{{.Note}}</div>{{end}}
</body></html>`))

// Message is a rendered announcement.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer formats announcements for direct delivery.
type Renderer struct {
	loc *time.Location
}

// NewRenderer creates a renderer showing deadlines in loc.
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{loc: loc}
}

// LocalDeadline converts the wire deadline to the renderer's zone.
// Unparseable input is returned unchanged.
func (r *Renderer) LocalDeadline(wire string) string {
	t, err := announcement.ParseDeadline(wire)
	if err != nil {
		return wire
	}
	return t.In(r.loc).Format("2006/01/02 15:04")
}

// Render builds subject and bodies for p.
func (r *Renderer) Render(p announcement.Payload) (Message, error) {
	deadline := r.LocalDeadline(p.Deadline)
	note, err := NoteHTML(p.Note)
	if err != nil {
		return Message{}, err
	}

	var buf bytes.Buffer
	err = messageTmpl.Execute(&buf, struct {
		Vendor, Link, Deadline string
		Note                   template.HTML
	}{
		Vendor:   p.Vendor,
		Deadline: deadline,
		Link:     p.Link,
		Note:     note,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render message: %w", err)
	}

	text := fmt.Sprintf("%s\nOrder here: %s\nOrder by %s\n", p.Vendor, p.Link, deadline)
	if p.Note != "" {
		text += "\n" + p.Note + "\n"
	}

	return Message{
		Subject: fmt.Sprintf("Drink order: %s (order by %s)", p.Vendor, deadline),
		HTML:    buf.String(),
		Text:    text,
	}, nil
}
