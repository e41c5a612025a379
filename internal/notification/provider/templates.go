package provider

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

const (
	// TemplateNewLead tells a builder about a lead they matched.
	TemplateNewLead = "lead.new_match"

	smsMaxRunes = 1600
)

// Rendered is a template expanded for one channel.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type templateSet struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

var templates = map[string]templateSet{
	TemplateNewLead: {
		subject: texttemplate.Must(texttemplate.New("subject").Parse(
			`New stand request: {{.exhibition}} in {{.city}}`)),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(`<!doctype html>
<html><body style="font-family:Arial,sans-serif;color:#1f2933">
<h2>New exhibition stand request</h2>
<p><strong>{{.companyName}}</strong> needs a stand for <strong>{{.exhibition}}</strong> in {{.city}}, {{.country}}.</p>
<table cellpadding="4">
<tr><td>Stand size</td><td>{{.standSize}} m²</td></tr>
<tr><td>Budget</td><td>{{.budget}}</td></tr>
<tr><td>Timeline</td><td>{{.timeline}}</td></tr>
<tr><td>Match score</td><td>{{.score}}</td></tr>
</table>
{{with .reasons}}<p>Why you: {{range $i, $r := .}}{{if $i}}, {{end}}{{$r}}{{end}}</p>{{end}}
{{with .link}}<p><a href="{{.}}">View the request</a></p>{{end}}
</body></html>`)),
		text: texttemplate.Must(texttemplate.New("text").Parse(
			`New stand request: {{.companyName}} for {{.exhibition}} in {{.city}}, {{.country}}. ` +
				`{{.standSize}} m2, budget {{.budget}}, timeline {{.timeline}}. Score {{.score}}.` +
				`{{with .link}} {{.}}{{end}}`)),
	},
}

// Render expands templateID with payload. Missing keys render empty.
func Render(templateID string, payload map[string]any) (Rendered, error) {
	set, ok := templates[templateID]
	if !ok {
		return Rendered{}, Permanent(fmt.Errorf("unknown template %q", templateID))
	}

	var subject, html, text bytes.Buffer
	if err := set.subject.Option("missingkey=zero").Execute(&subject, payload); err != nil {
		return Rendered{}, Permanent(fmt.Errorf("render subject: %w", err))
	}
	if err := set.html.Option("missingkey=zero").Execute(&html, payload); err != nil {
		return Rendered{}, Permanent(fmt.Errorf("render html: %w", err))
	}
	if err := set.text.Option("missingkey=zero").Execute(&text, payload); err != nil {
		return Rendered{}, Permanent(fmt.Errorf("render text: %w", err))
	}

	return Rendered{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()),
	}, nil
}
