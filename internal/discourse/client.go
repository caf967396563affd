// Package discourse provides the typed client for the remote Discourse
// API. All calls share one resilience policy: a bounded number of
// attempts, exponential backoff with jitter on rate limiting and
// transient server errors, Retry-After honored when present, and a fixed
// per-call timeout. Sleep and jitter are injectable so backoff behavior
// is unit-testable without real sleeps.
package discourse

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/pkg/constants"
	"github.com/eventloom/icsync/pkg/errors"
	"github.com/eventloom/icsync/pkg/logging"
)

// Credentials identify the remote instance and the API user acting on
// its behalf.
type Credentials struct {
	BaseURL  string
	APIKey   string
	Username string
}

// Client is the remote API client. It is safe for sequential use; the
// engine serializes all remote access through one Client per process.
type Client struct {
	base  string
	creds Credentials
	http  *http.Client
	log   zerolog.Logger

	sleep    func(time.Duration)
	jitter   func() time.Duration
	cooldown time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithSleeper replaces the function used to wait between attempts.
// Tests inject a recorder here instead of sleeping.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithJitter replaces the jitter source.
func WithJitter(jitter func() time.Duration) Option {
	return func(c *Client) { c.jitter = jitter }
}

// WithCooldown overrides the pause after each successful call.
func WithCooldown(d time.Duration) Option {
	return func(c *Client) { c.cooldown = d }
}

// New creates a Client. Base URL and API key are required; the API
// username defaults to "system".
func New(creds Credentials, opts ...Option) (*Client, error) {
	if strings.TrimSpace(creds.BaseURL) == "" || strings.TrimSpace(creds.APIKey) == "" {
		return nil, errors.NewConfigError("discourse", "base URL and API key are required", errors.ErrCredentialsRequired)
	}
	if creds.Username == "" {
		creds.Username = constants.DefaultAPIUsername
	}

	c := &Client{
		base:     strings.TrimRight(creds.BaseURL, "/"),
		creds:    creds,
		http:     &http.Client{Timeout: constants.HTTPTimeout},
		log:      *logging.Default(),
		sleep:    time.Sleep,
		jitter:   func() time.Duration { return time.Duration(rand.Int63n(int64(constants.RetryJitter))) },
		cooldown: constants.WriteCooldown,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do performs one API call with the shared retry policy and decodes the
// JSON response into out when out is non-nil. Empty response bodies are
// tolerated; some write endpoints return nothing.
func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, out any) error {
	delay := constants.RetryBackoff
	var lastErr error

	for attempt := 0; attempt < constants.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.WrapSync("", "remote call", 0, errors.ErrCanceled)
		}

		status, body, retryAfter, err := c.once(ctx, method, path, query, form)
		switch {
		case err != nil:
			// Network-level failure: retryable.
			lastErr = &errors.APIError{Endpoint: path, Message: "transport failure", Err: err}

		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = errors.NewAPIError(path, status, strings.TrimSpace(string(body)))

		case status >= 400:
			// Permanent: log the remote payload for diagnosis and
			// escalate without retrying.
			apiErr := errors.NewAPIError(path, status, strings.TrimSpace(string(body)))
			c.log.Error().Int("status", status).Str("endpoint", path).
				Str("payload", truncate(string(body), 500)).Msg("remote call rejected")
			return apiErr

		default:
			if out != nil && len(strings.TrimSpace(string(body))) > 0 {
				if err := json.Unmarshal(body, out); err != nil {
					return errors.WrapParse("json", method+" "+path, err)
				}
			}
			// Be gentle even on success.
			if c.cooldown > 0 {
				c.sleep(c.cooldown)
			}
			return nil
		}

		if attempt == constants.MaxAttempts-1 {
			break
		}

		wait := delay
		if retryAfter > 0 {
			wait = retryAfter
		}
		c.log.Warn().Str("endpoint", path).Int("attempt", attempt+1).
			Dur("wait", wait).Err(lastErr).Msg("retrying remote call")
		c.sleep(wait + c.jitter())
		if delay *= 2; delay > constants.MaxRetryBackoff {
			delay = constants.MaxRetryBackoff
		}
	}

	return lastErr
}

// once performs a single HTTP round trip and returns status, body, and
// any Retry-After hint.
func (c *Client) once(ctx context.Context, method, path string, query, form url.Values) (int, []byte, time.Duration, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Api-Key", c.creds.APIKey)
	req.Header.Set("Api-Username", c.creds.Username)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, 0, err
	}

	var retryAfter time.Duration
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs > 0 {
			retryAfter = time.Duration(secs * float64(time.Second))
		}
	}

	return resp.StatusCode, body, retryAfter, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
