// Package render produces the final campaign markup from the content and
// design artifacts.
package render

import (
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
)

// HTMLRenderer renders an email-style HTML document. Artifact values pass
// through html/template so generated copy cannot inject markup.
type HTMLRenderer struct {
	tmpl *template.Template
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<header><h1>{{.Title}}</h1>{{if .Subject}}<p class="subject">{{.Subject}}</p>{{end}}</header>
<main>
{{range .Sections}}<section><h2>{{.Name}}</h2>{{.Body}}</section>
{{end}}</main>
{{if .CTA}}<footer><a class="cta" href="#">{{.CTA}}</a></footer>{{end}}
</body>
</html>
`

type page struct {
	Title    string
	Subject  string
	CTA      string
	Sections []pageSection
}

type pageSection struct {
	Name string
	Body template.HTML
}

// NewHTMLRenderer creates a renderer with the built-in page template.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{tmpl: template.Must(template.New("page").Parse(pageTemplate))}
}

// Render assembles the artifacts into one HTML document. Artifact keys are
// namespace-qualified names such as "content/headline".
func (r *HTMLRenderer) Render(_ context.Context, artifacts map[string]any) (string, error) {
	p := page{Title: "Campaign"}

	if headline, ok := artifacts["content/headline"].(map[string]any); ok {
		if h, ok := headline["headline"].(string); ok && h != "" {
			p.Title = h
		}
	}
	if subject, ok := artifacts["content/subject-line"].(map[string]any); ok {
		if s, ok := subject["subject"].(string); ok {
			p.Subject = s
		}
	}
	if cta, ok := artifacts["content/call-to-action"].(map[string]any); ok {
		if label, ok := cta["label"].(string); ok {
			p.CTA = label
		}
	}

	keys := make([]string, 0, len(artifacts))
	for k := range artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch key {
		case "content/headline", "content/subject-line", "content/call-to-action":
			continue
		}
		p.Sections = append(p.Sections, pageSection{
			Name: sectionName(key),
			Body: renderValue(artifacts[key]),
		})
	}

	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, p); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return sb.String(), nil
}

func sectionName(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		key = key[i+1:]
	}
	return strings.ReplaceAll(key, "-", " ")
}

// renderValue walks an artifact, escaping every leaf.
func renderValue(v any) template.HTML {
	var sb strings.Builder
	writeValue(&sb, v)
	return template.HTML(sb.String())
}

func writeValue(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("<dl>")
		for _, k := range keys {
			fmt.Fprintf(sb, "<dt>%s</dt><dd>", template.HTMLEscapeString(k))
			writeValue(sb, val[k])
			sb.WriteString("</dd>")
		}
		sb.WriteString("</dl>")
	case []any:
		sb.WriteString("<ul>")
		for _, item := range val {
			sb.WriteString("<li>")
			writeValue(sb, item)
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>")
	case string:
		sb.WriteString(template.HTMLEscapeString(val))
	default:
		sb.WriteString(template.HTMLEscapeString(fmt.Sprint(val)))
	}
}
