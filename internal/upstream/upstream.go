// Package upstream fetches JSON documents from the remote services that
// back the exchange and movie pages.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const maxBodyBytes = 1 << 20

// secretParams never reach the cache, the logs or returned errors.
var secretParams = []string{"apikey"}

var (
	// ErrUnavailable covers transport failures and non-2xx answers.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrMalformed is returned when the answer is not the expected JSON.
	ErrMalformed = errors.New("malformed upstream payload")
)

// Cache stores raw payloads by key. *cache.Store implements it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
}

type Client struct {
	http   *http.Client
	cache  Cache
	logger *slog.Logger
}

// NewClient returns a client whose requests give up after timeout. cache may
// be nil.
func NewClient(timeout time.Duration, cache Cache, logger *slog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: timeout},
		cache:  cache,
		logger: logger,
	}
}

// FetchJSON GETs rawURL and decodes the body into v. A cached payload for the
// same url is used when present; fresh payloads are cached only after they
// decode. Cache keys and log lines carry the url without secret parameters.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, v any) error {
	key := redact(rawURL)
	if c.cache != nil {
		payload, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache read failed", "error", err)
		}
		if ok {
			if err := json.Unmarshal(payload, v); err == nil {
				c.logger.Debug("upstream cache hit", "url", key)
				return nil
			}
		}
	}

	payload, err := c.get(ctx, rawURL)
	if err != nil {
		return redactErr(err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, payload); err != nil {
			c.logger.Warn("cache write failed", "error", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("upstream response",
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return payload, nil
}

// redact strips secretParams from rawURL. A url that does not parse is
// replaced entirely since it cannot be cleaned.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Del(p)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// redactErr removes secrets from the url carried by a *url.Error, which is
// what net/http returns for transport failures.
func redactErr(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = redact(ue.URL)
	}
	return err
}
