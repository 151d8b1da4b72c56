// Package web holds the minimal server-rendered pages: a landing page and
// the post-login redirect interstitial. The single-page front end owns
// everything else.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes the embedded page templates by name.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates once at startup.
func NewRenderer() (*Renderer, error) {
	parsed, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &Renderer{templates: parsed}, nil
}

// Render writes the named page. Unknown names are an error so typos fail
// loudly instead of serving a blank page.
func (r *Renderer) Render(w http.ResponseWriter, name string, data any) error {
	tmpl := r.templates.Lookup(name + ".html")
	if tmpl == nil {
		return fmt.Errorf("unknown page %q", name)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.Execute(w, data)
}
