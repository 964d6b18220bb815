// Package pages holds the static markup served by the router.
package pages

import (
	"embed"
	"html/template"
	"strings"
)

//go:embed templates
var files embed.FS

var (
	indexPage  = mustRead("templates/index.html")
	moviesPage = mustRead("templates/movies.html")

	notFoundTmpl = template.Must(template.ParseFS(files, "templates/notfound.html"))
)

// Fixed bodies for failures detected before routing.
const (
	BadRequest    = "<h1>400 - Bad Request</h1><p>Malformed request</p>"
	InternalError = "<h1>500 - Internal Server Error</h1>"
)

func mustRead(name string) string {
	b, err := files.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Index is the landing page with links to every service.
func Index() string {
	return indexPage
}

// MovieSearch is the form that submits to /movie.
func MovieSearch() string {
	return moviesPage
}

// NotFound renders the 404 page. Only markup characters of path are escaped,
// so "/c++" or "/a'b" are echoed as sent.
func NotFound(path string) string {
	var b strings.Builder
	if err := notFoundTmpl.Execute(&b, template.HTML(escapeMarkup(path))); err != nil {
		return "<h1>404 - Page not found</h1><p>Path " + escapeMarkup(path) + " was not found.</p>"
	}
	return b.String()
}

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;")

func escapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}
