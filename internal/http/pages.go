package http

import (
	"html/template"
	"log/slog"
	"net/http"
)

type pageKind string

const (
	failedPage   pageKind = "failed"
	canceledPage pageKind = "canceled"
	completePage pageKind = "complete"
)

type pageData struct {
	Title   string
	OrderID string
	Detail  string
}

var pages = template.Must(template.New("pages").Parse(`
{{define "layout"}}<!doctype html>
<html lang="ko">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1"><title>MindQuiz - {{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .OrderID}}<p>Order: <code>{{.OrderID}}</code></p>{{end}}
{{if .Detail}}<p>{{.Detail}}</p>{{end}}
<p><a href="/">Back to MindQuiz</a></p>
</body>
</html>{{end}}
`))

var pageTitles = map[pageKind]string{
	failedPage:   "Payment failed",
	canceledPage: "Payment canceled",
	completePage: "Payment complete",
}

func renderPage(w http.ResponseWriter, kind pageKind, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data.Title = pageTitles[kind]
	err := pages.ExecuteTemplate(w, "layout", data)
	if err != nil {
		slog.Error("render page failed", "page", kind, "error", err)
	}
}
