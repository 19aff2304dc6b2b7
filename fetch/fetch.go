// Package fetch retrieves CI pages and logs over HTTP. It is the
// swappable collaborator the parser and walker depend on; everything
// else in the module treats its errors as recoverable per page.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Error is a failed page fetch: a transport error or a non-2xx status.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher retrieves one document by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Client is a rate-limited, retrying HTTP fetcher.
type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient builds a Client with a fixed per-request timeout and a
// request rate cap so windowed walks stay polite to the CI server.
func NewClient(logger zerolog.Logger, timeout time.Duration, requestsPerSecond float64) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout

	return &Client{
		http:    rc,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

// Fetch downloads one page and returns its body as text.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	return string(body), nil
}

// Download streams a URL's body into w. Used for artifact files that
// may be too large to buffer.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &Error{URL: url, Err: err}
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		return nil, &Error{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// LogURLs returns the candidate Bamboo locations for a job's log, in
// the order they should be tried.
func LogURLs(baseURL, jobKey string) []string {
	base := baseURL
	if i := strings.LastIndex(base, "/browse/"); i >= 0 {
		base = base[:i]
	}
	return []string{
		base + "/browse/" + jobKey,
		base + "/viewBuildLog.action?buildKey=" + jobKey,
		base + "/download/" + jobKey + "/build_logs/",
	}
}

// FetchLog tries each candidate log location for a job and returns the
// first page that loads. ok is false when none do; callers treat a
// missing log as a soft absence, not an error.
func (c *Client) FetchLog(ctx context.Context, baseURL, jobKey string) (string, bool) {
	if jobKey == "" {
		return "", false
	}
	for _, u := range LogURLs(baseURL, jobKey) {
		text, err := c.Fetch(ctx, u)
		if err != nil {
			c.logger.Debug().Err(err).Str("url", u).Msg("log candidate not available")
			continue
		}
		return text, true
	}
	return "", false
}
