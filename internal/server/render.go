package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/attrib-app/attrib/internal/dashboard"
)

type layoutData struct {
	Title   string
	CSS     template.CSS
	Content template.HTML
}

func parseTemplates() (layout, pages *template.Template, err error) {
	layout, err = template.ParseFS(dashboard.Templates, "templates/layout.html")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	pages, err = template.ParseFS(dashboard.Templates,
		"templates/page.html",
		"templates/app.html",
		"templates/feedback.html",
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return layout, pages, nil
}

// renderPage writes a full HTML document with the page template as content.
func (s *Server) renderPage(w http.ResponseWriter, title string, data pageData) {
	cssBytes, err := dashboard.Assets.ReadFile("assets/style.css")
	if err != nil {
		http.Error(w, "Failed to load styles", http.StatusInternalServerError)
		return
	}

	content, err := s.fragment("page", data)
	if err != nil {
		s.logger.Error("failed to render page", "error", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.layout.Execute(&buf, layoutData{
		Title:   title,
		CSS:     template.CSS(cssBytes),
		Content: template.HTML(content),
	}); err != nil {
		s.logger.Error("failed to render layout", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// fragment renders one named template to a string for an SSE patch.
func (s *Server) fragment(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
