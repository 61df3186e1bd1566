package api

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/lox/firerisk/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"optFloat": func(o models.OptionalFloat, format string) string {
			if !o.Valid {
				return "–"
			}
			return fmt.Sprintf(format, o.Float64)
		},
		"optInt": func(o models.OptionalInt) string {
			if !o.Valid {
				return "–"
			}
			return fmt.Sprint(o.Int64)
		},
		"orDash": func(s string) string {
			if strings.TrimSpace(s) == "" {
				return "–"
			}
			return s
		},
		"upper": strings.ToUpper,
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
