// Package maps talks to the Google Places API (v1) for address autocomplete
// and place resolution.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const (
	defaultBaseURL = "https://places.googleapis.com/v1"
	errorBodyLimit = 1 << 10
)

var errAPIKeyRequired = errors.New("maps: api key required")

// Client is safe for concurrent use. Concurrent resolves of one place id
// share a single upstream call.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	language   string
	retries    uint64
	retryDelay time.Duration
	resolves   singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
			c.baseURL = u
		}
	}
}

// WithLanguage sets the languageCode sent with autocomplete requests that
// do not carry their own.
func WithLanguage(code string) Option {
	return func(c *Client) { c.language = strings.TrimSpace(code) }
}

// WithRetries bounds how often a 5xx or 429 is retried, with exponential
// backoff starting at delay.
func WithRetries(max uint64, delay time.Duration) Option {
	return func(c *Client) {
		c.retries = max
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	c := &Client{
		http:       &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		retries:    2,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// httpStatusError is a non-200 answer from Places.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("places: status %d: %s", e.status, e.body)
}

func (e *httpStatusError) retryable() bool {
	return e.status >= http.StatusInternalServerError || e.status == http.StatusTooManyRequests
}

// call performs one logical request, retrying transient failures, and
// decodes a 200 body into out.
func (c *Client) call(ctx context.Context, method, path, fieldMask string, payload any, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode places request: %w", err)
		}
		body = encoded
	}
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.roundTrip(ctx, method, c.baseURL+"/"+path, fieldMask, body, out)
		var se *httpStatusError
		if errors.As(err, &se) && se.retryable() {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint, fieldMask string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode places response: %w", err)
	}
	return nil
}

// classify maps transport and status failures onto API error codes.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var se *httpStatusError
	if errors.As(err, &se) {
		switch se.status {
		case http.StatusBadRequest:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, op+" rejected")
		case http.StatusNotFound:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "place not found")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" failed")
}
