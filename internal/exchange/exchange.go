// Package exchange renders the /exchange page: the rate of a currency
// against the ruble and the dollar, fetched from exchangerate-api.com.
package exchange

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"html"
	"html/template"
	"log/slog"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/request"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/upstream"
)

const (
	DefaultCurrency = "USD"
	quoteCurrency   = "RUB"
)

//go:embed currencies.toml
var currenciesTOML []byte

//go:embed pages.html
var pagesHTML string

var tmpl = template.Must(template.New("exchange").Parse(pagesHTML))

type catalog struct {
	Currencies map[string]string `toml:"currencies"`
}

// Fetcher decodes a JSON document at url. *upstream.Client implements it.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, v any) error
}

// latest is the payload of exchangerate-api.com's /v4/latest/USD.
type latest struct {
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

type quote struct {
	Code   string
	Name   string
	ToRUB  float64
	PerUSD float64
	Date   string
}

type Service struct {
	fetcher Fetcher
	url     string
	names   map[string]string
	logger  *slog.Logger
}

// New returns a Service reading dollar-based rates from url.
func New(fetcher Fetcher, url string, logger *slog.Logger) (*Service, error) {
	var c catalog
	if err := toml.Unmarshal(currenciesTOML, &c); err != nil {
		return nil, err
	}
	return &Service{
		fetcher: fetcher,
		url:     url,
		names:   c.Currencies,
		logger:  logger,
	}, nil
}

// Render reads the currency parameter (USD when absent) and returns the
// quote page. Failures are reported inside the page.
func (s *Service) Render(ctx context.Context, q request.Query) string {
	code, ok := q.Get("currency")
	if !ok {
		code = DefaultCurrency
	}
	return s.Quote(ctx, strings.ToUpper(code))
}

// Quote returns the page for one currency code.
func (s *Service) Quote(ctx context.Context, code string) string {
	var data latest
	if err := s.fetcher.FetchJSON(ctx, s.url, &data); err != nil {
		if errors.Is(err, upstream.ErrMalformed) {
			s.logger.Warn("exchange payload malformed", "currency", code, "error", err)
			return render("malformed", nil)
		}
		s.logger.Warn("exchange rates unavailable", "currency", code, "error", err)
		return render("unavailable", code)
	}

	perUSD, ok := data.Rates[code]
	if !ok {
		return render("unknown", code)
	}

	rub, ok := data.Rates[quoteCurrency]
	if !ok {
		rub = 1
	}
	var toRUB float64
	if perUSD != 0 {
		toRUB = rub / perUSD
	}

	name, ok := s.names[code]
	if !ok {
		name = code
	}
	date := data.Date
	if date == "" {
		date = "unknown"
	}

	return render("quote", quote{
		Code:   code,
		Name:   name,
		ToRUB:  toRUB,
		PerUSD: perUSD,
		Date:   date,
	})
}

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "<h1>Error</h1><p>" + html.EscapeString(err.Error()) + "</p>"
	}
	return buf.String()
}
