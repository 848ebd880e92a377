package api

import (
	"embed"
	"html/template"
)

//go:embed static/*.html
var apiStaticFS embed.FS

// formTemplate renders the prediction page.
var formTemplate = template.Must(template.New("form.html").Funcs(template.FuncMap{
	"percent": func(p float64) string { return formatPercent(p) },
	"fixed2":  func(p float64) string { return formatFixed2(p) },
	"width":   func(p float64) int { return int(p*100 + 0.5) },
	"deref":   func(p *float64) float64 { return *p },
}).ParseFS(apiStaticFS, "static/form.html"))
