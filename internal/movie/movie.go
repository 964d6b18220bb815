// Package movie renders the /movie page from an OMDb title lookup.
package movie

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"html"
	"html/template"
	"log/slog"
	"net/url"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/request"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/upstream"
)

//go:embed pages.html
var pagesHTML string

var tmpl = template.Must(template.New("movie").Parse(pagesHTML))

const unknown = "unknown"

// Fetcher decodes a JSON document at url. *upstream.Client implements it.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, v any) error
}

// omdbTitle is the subset of an OMDb "?t=" answer shown on the page.
type omdbTitle struct {
	Response string `json:"Response"`
	Error    string `json:"Error"`
	Title    string `json:"Title"`
	Year     string `json:"Year"`
	Director string `json:"Director"`
	Rating   string `json:"imdbRating"`
	Plot     string `json:"Plot"`
	Genre    string `json:"Genre"`
	Actors   string `json:"Actors"`
	Poster   string `json:"Poster"`
}

type Service struct {
	fetcher Fetcher
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func New(fetcher Fetcher, baseURL, apiKey string, logger *slog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// Render reads the title parameter and returns the movie page. Failures are
// reported inside the page.
func (s *Service) Render(ctx context.Context, q request.Query) string {
	title, ok := q.Get("title")
	if !ok {
		return render("missing", nil)
	}
	return s.Lookup(ctx, title)
}

// Lookup returns the page for one title.
func (s *Service) Lookup(ctx context.Context, title string) string {
	if title == "" {
		return render("missing", nil)
	}

	lookupURL, err := s.lookupURL(title)
	if err != nil {
		s.logger.Error("bad omdb url", "url", s.baseURL, "error", err)
		return render("unavailable", title)
	}

	var data omdbTitle
	if err := s.fetcher.FetchJSON(ctx, lookupURL, &data); err != nil {
		if errors.Is(err, upstream.ErrMalformed) {
			s.logger.Warn("movie payload malformed", "title", title, "error", err)
			return render("malformed", nil)
		}
		s.logger.Warn("movie lookup unavailable", "title", title, "error", err)
		return render("unavailable", title)
	}

	if data.Response == "False" {
		msg := data.Error
		if msg == "" {
			msg = "Movie not found!"
		}
		return render("notfound", msg)
	}

	if data.Poster == "N/A" {
		data.Poster = ""
	}
	if data.Plot == "" {
		data.Plot = "No plot available"
	}
	for _, f := range []*string{&data.Title, &data.Year, &data.Director, &data.Rating, &data.Genre, &data.Actors} {
		if *f == "" {
			*f = unknown
		}
	}
	return render("details", data)
}

func (s *Service) lookupURL(title string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("apikey", s.apiKey)
	q.Set("t", title)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "<h1>Error</h1><p>" + html.EscapeString(err.Error()) + "</p>"
	}
	return buf.String()
}
