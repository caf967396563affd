package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/pkg/constants"
	"github.com/eventloom/icsync/pkg/errors"
)

const fetchAttempts = 3

// Fetcher loads a calendar payload from a local file or an HTTP(S) URL.
// URL fetches get a few retries; feed hosts are flaky in exactly the
// transient ways a scheduled sync can ride out. With a cache directory
// configured, fetches are conditional (ETag / Last-Modified) and a 304
// answer is served from the cached body. A failed fetch is always an
// error: reconciling against a stale cached feed would write old data.
type Fetcher struct {
	client   *http.Client
	log      zerolog.Logger
	sleep    func(time.Duration)
	cacheDir string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCacheDir enables the conditional-request cache under dir.
func WithCacheDir(dir string) FetcherOption {
	return func(f *Fetcher) { f.cacheDir = dir }
}

// NewFetcher creates a Fetcher with the default HTTP client.
func NewFetcher(log zerolog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: constants.SourceFetchTimeout},
		log:    log,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load reads the payload behind ref, which is treated as a URL when it
// has an http or https scheme and as a filesystem path otherwise.
func (f *Fetcher) Load(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, errors.NewConfigError("ics", "calendar source is empty", errors.ErrInvalidInput)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return f.fetchURL(ctx, ref)
	}

	body, err := os.ReadFile(ref)
	if err != nil {
		return nil, errors.WrapIO("read", ref, err)
	}
	f.log.Debug().Str("path", ref).Int("bytes", len(body)).Msg("loaded calendar file")
	return body, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, url string) ([]byte, error) {
	cache := f.openCache(url)
	backoff := constants.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := f.fetchOnce(ctx, url, cache)
		if err == nil {
			f.log.Debug().Str("url", url).Int("bytes", len(body)).Msg("fetched calendar")
			return body, nil
		}
		lastErr = err
		if !errors.Retryable(err) {
			return nil, err
		}

		if attempt < fetchAttempts {
			f.log.Warn().Err(err).Str("url", url).Int("attempt", attempt).
				Dur("backoff", backoff).Msg("calendar fetch failed, retrying")
			f.sleep(backoff)
			backoff *= 2
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, cache *feedCache) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.8")
	if cache != nil {
		if cache.meta.ETag != "" {
			req.Header.Set("If-None-Match", cache.meta.ETag)
		}
		if cache.meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", cache.meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Transport failures are transient as far as the retry loop is
		// concerned, so mark them with the unavailable sentinel.
		return nil, fmt.Errorf("fetch %s: %v: %w", url, err, errors.ErrRemoteUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cache != nil && len(cache.body) > 0:
		f.log.Debug().Str("url", url).Msg("calendar not modified, using cached body")
		return cache.body, nil

	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			cache.save(f.log, url, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), body)
		}
		return body, nil

	default:
		return nil, errors.NewAPIError(url, resp.StatusCode, fmt.Sprintf("calendar fetch returned %s", resp.Status))
	}
}

// feedCache is the on-disk conditional-request state for one URL.
type feedCache struct {
	dir  string
	meta feedCacheMeta
	body []byte
}

type feedCacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// openCache loads any existing cache state for url. Returns nil when
// caching is disabled; missing or unreadable state is just empty.
func (f *Fetcher) openCache(url string) *feedCache {
	if f.cacheDir == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(url))
	cache := &feedCache{dir: filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))}

	if data, err := os.ReadFile(filepath.Join(cache.dir, "meta.json")); err == nil {
		_ = json.Unmarshal(data, &cache.meta)
	}
	cache.body, _ = os.ReadFile(filepath.Join(cache.dir, "body.ics"))
	return cache
}

// save persists a fresh body with its validators. Cache write failures
// only cost the next run a full fetch, so they are logged, not returned.
func (c *feedCache) save(log zerolog.Logger, url, etag, lastModified string, body []byte) {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("calendar cache unavailable")
		return
	}
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(c.dir, "body.ics"), body, 0o600); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("calendar cache write failed")
		return
	}

	meta := feedCacheMeta{URL: url, ETag: etag, LastModified: lastModified, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(c.dir, "meta.json"), data, 0o600)
	}
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("calendar cache metadata write failed")
	}
}
