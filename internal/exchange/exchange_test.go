package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/request"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/slogutil"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/upstream"
)

const ratesJSON = `{"base":"USD","date":"2024-05-01","rates":{"USD":1,"EUR":0.9,"RUB":90,"XTS":0}}`

type stubFetcher struct {
	payload string
	err     error
	urls    []string
}

func (f *stubFetcher) FetchJSON(_ context.Context, url string, v any) error {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.payload), v)
}

func newTestService(t *testing.T, f Fetcher) *Service {
	t.Helper()
	s, err := New(f, "https://rates.test/latest/USD", slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestRenderQuote(t *testing.T) {
	f := &stubFetcher{payload: ratesJSON}
	s := newTestService(t, f)

	body := s.Render(context.Background(), request.Query{"currency": {"eur"}})

	for _, want := range []string{
		"Euro (EUR)",
		"1 EUR = 100.00 RUB",
		"1 USD = 0.9000 EUR",
		"Updated: 2024-05-01",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if len(f.urls) != 1 || f.urls[0] != "https://rates.test/latest/USD" {
		t.Errorf("fetched %v", f.urls)
	}
}

func TestRenderDefaultsToUSD(t *testing.T) {
	s := newTestService(t, &stubFetcher{payload: ratesJSON})

	body := s.Render(context.Background(), request.Query{})
	if !strings.Contains(body, "US Dollar (USD)") || !strings.Contains(body, "1 USD = 90.00 RUB") {
		t.Errorf("default page = %q", body)
	}
}

func TestRenderUnknownCurrency(t *testing.T) {
	s := newTestService(t, &stubFetcher{payload: ratesJSON})

	body := s.Render(context.Background(), request.Query{"currency": {"ZZZ"}})
	if !strings.Contains(body, "Currency ZZZ was not found") {
		t.Errorf("page = %q", body)
	}
}

func TestRenderZeroRate(t *testing.T) {
	s := newTestService(t, &stubFetcher{payload: ratesJSON})

	body := s.Quote(context.Background(), "XTS")
	if !strings.Contains(body, "1 XTS = 0.00 RUB") {
		t.Errorf("page = %q", body)
	}
}

func TestRenderEscapesCode(t *testing.T) {
	s := newTestService(t, &stubFetcher{payload: ratesJSON})

	body := s.Render(context.Background(), request.Query{"currency": {"<b>x"}})
	if strings.Contains(body, "<B>X") {
		t.Errorf("currency code was not escaped: %q", body)
	}
}

func TestRenderFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", fmt.Errorf("%w: status 503", upstream.ErrUnavailable), "Could not fetch the rate for GBP"},
		{"malformed", fmt.Errorf("%w: bad json", upstream.ErrMalformed), "could not be processed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, &stubFetcher{err: tt.err})
			body := s.Render(context.Background(), request.Query{"currency": {"GBP"}})
			if !strings.Contains(body, tt.want) {
				t.Errorf("page = %q, want it to contain %q", body, tt.want)
			}
		})
	}
}

func TestRenderAgainstHTTPUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(ratesJSON))
	}))
	defer srv.Close()

	logger := slogutil.NewDiscardLogger()
	s, err := New(upstream.NewClient(time.Second, nil, logger), srv.URL, logger)
	if err != nil {
		t.Fatal(err)
	}

	body := s.Render(context.Background(), request.Query{"currency": {"EUR"}})
	if !strings.Contains(body, "1 EUR = 100.00 RUB") {
		t.Errorf("page = %q", body)
	}
}

func TestCatalogLoaded(t *testing.T) {
	s := newTestService(t, &stubFetcher{})
	for _, code := range []string{"USD", "EUR", "GBP", "JPY", "CNY", "RUB", "CAD", "AUD"} {
		if s.names[code] == "" {
			t.Errorf("no display name for %s", code)
		}
	}
}
