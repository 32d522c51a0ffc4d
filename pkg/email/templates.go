package email

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"date": func(layout string, v interface{}) string {
		if t, ok := v.(interface{ Format(string) string }); ok {
			return t.Format(layout)
		}
		return ""
	},
}

func loadTemplates() (*template.Template, error) {
	return template.New("email").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
}
