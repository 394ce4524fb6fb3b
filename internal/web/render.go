// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

//go:embed templates/*.html
var templatesFS embed.FS

const layoutTemplate = "base.html"

// page is the data every template renders from.
type page struct {
	Title     string
	Flash     string
	User      *auth.User
	CSRFToken string
	Values    map[string]string
	Errors    auth.FieldErrors

	// Reset link parameters, echoed into the set-password form action.
	ResetBase  string
	ResetToken string

	Status  int
	Message string
}

// renderer executes one template set per page, each parsed with the layout.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	names, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, oops.Code("TEMPLATE_PARSE_FAILED").Wrap(err)
	}

	r := &renderer{pages: make(map[string]*template.Template, len(names))}
	for _, path := range names {
		name := path[len("templates/"):]
		if name == layoutTemplate {
			continue
		}
		t, err := template.ParseFS(templatesFS, "templates/"+layoutTemplate, path)
		if err != nil {
			return nil, oops.Code("TEMPLATE_PARSE_FAILED").With("template", name).Wrap(err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render implements echo.Renderer.
func (r *renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return oops.Code("TEMPLATE_NOT_FOUND").With("template", name).Errorf("unknown template %q", name)
	}
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		return oops.Code("TEMPLATE_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return nil
}

// newPage fills the per-request fields shared by every page.
func (s *Server) newPage(c echo.Context, title string) *page {
	p := &page{
		Title: title,
		Flash: s.popFlash(c),
		User:  currentUser(c),
	}
	if token, ok := c.Get(csrfContextKey).(string); ok {
		p.CSRFToken = token
	}
	return p
}
