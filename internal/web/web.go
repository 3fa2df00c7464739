package web

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Parse loads the embedded page templates, "index" and "wishlist" are the entry points
func Parse() (*template.Template, error) {
	t, err := template.New("pages").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return t, nil
}

func MustParse() *template.Template {
	t, err := Parse()
	if err != nil {
		panic(err)
	}

	return t
}
