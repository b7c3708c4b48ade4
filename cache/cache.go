// Package cache is a persistent HTTP cache for XBRL filings and taxonomies.
//
// Files are mirrored on disk under the cache root at the URL's authority+path
// (https://host/a/b.xsd -> <root>/host/a/b.xsd). A cached file is served
// without touching the network; misses are fetched politely: a configurable
// minimum gap between network requests, retries with exponential backoff on
// transient failures, and caller-supplied headers (SEC EDGAR requires
// User-Agent and From; none are shipped by default).
package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sells-group/xbrl/xmltree"
)

var schemeRe = regexp.MustCompile(`^https?://`)

// RemoteFetchError reports a failed download: a non-retryable HTTP status or
// exhausted retries.
type RemoteFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *RemoteFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("cache: fetch %s: http %d", e.URL, e.Status)
	}
	return fmt.Sprintf("cache: fetch %s: %v", e.URL, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// Cache is safe for use by concurrent parses. Network fetches are serialized
// through a shared limiter so the configured delay holds globally, and
// concurrent requests for one URL coalesce onto a single download.
type Cache struct {
	root string

	mu      sync.Mutex
	headers map[string]string
	delay   time.Duration
	retries int
	backoff float64
	verbose bool
	limiter *rate.Limiter

	client *http.Client
	group  singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithDelay sets the minimum wall-clock gap between two network fetches.
func WithDelay(d time.Duration) Option { return func(c *Cache) { c.setDelay(d) } }

// WithRetries sets how many attempts a request gets before failing.
func WithRetries(n int) Option { return func(c *Cache) { c.retries = n } }

// WithBackoffFactor sets the retry backoff factor; the sleep after failed
// attempt n is backoff * 2^(n-1) seconds.
func WithBackoffFactor(f float64) Option { return func(c *Cache) { c.backoff = f } }

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Cache) { c.client = h } }

// WithVerbose enables per-download logging.
func WithVerbose(v bool) Option { return func(c *Cache) { c.verbose = v } }

// New creates a cache rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, eris.New("cache: empty cache dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "cache: create root %s", dir)
	}
	c := &Cache{
		root:    dir,
		retries: 5,
		backoff: 0.8,
		verbose: true,
		limiter: rate.NewLimiter(rate.Inf, 1),
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewEphemeral creates a cache in a fresh temporary directory. It behaves
// exactly like a persistent cache but its contents only live as long as the
// directory does.
func NewEphemeral(opts ...Option) (*Cache, error) {
	dir, err := os.MkdirTemp("", "xbrlcache-*")
	if err != nil {
		return nil, eris.Wrap(err, "cache: create temp root")
	}
	return New(dir, opts...)
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// SetHeaders replaces the headers sent with every request.
func (c *Cache) SetHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		c.headers[k] = v
	}
}

// SetConnectionParams adjusts the polite-fetch parameters for all following
// requests.
func (c *Cache) SetConnectionParams(delay time.Duration, retries int, backoff float64, verbose bool) {
	c.mu.Lock()
	c.retries = retries
	c.backoff = backoff
	c.verbose = verbose
	c.mu.Unlock()
	c.setDelay(delay)
}

func (c *Cache) setDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
	if d <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(d), 1)
}

// URLToPath maps a URL onto its local cache path: the scheme is stripped and
// the remainder joined under the cache root.
func (c *Cache) URLToPath(url string) string {
	rel := schemeRe.ReplaceAllString(url, "")
	rel = strings.TrimPrefix(rel, "/")
	return filepath.Join(c.root, filepath.FromSlash(rel))
}

// Get returns the local path of the cached file, downloading it first if
// necessary.
func (c *Cache) Get(ctx context.Context, url string) (string, error) {
	path := c.URLToPath(url)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// Coalesce concurrent parses asking for the same URL onto one fetch.
	_, err, _ := c.group.Do(url, func() (any, error) {
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		return nil, c.download(ctx, url, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// GetBytes returns the cached file's contents, downloading it first if
// necessary.
func (c *Cache) GetBytes(ctx context.Context, url string) ([]byte, error) {
	path, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	return data, nil
}

// GetDocument fetches and parses a URL as XML.
func (c *Cache) GetDocument(ctx context.Context, url string) (*xmltree.Document, error) {
	path, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return xmltree.ParseFile(path, url)
}

// Purge removes a file from the cache. It reports whether the file existed.
func (c *Cache) Purge(url string) bool {
	return os.Remove(c.URLToPath(url)) == nil
}

func (c *Cache) download(ctx context.Context, url, path string) error {
	c.mu.Lock()
	headers := c.headers
	retries := c.retries
	backoff := c.backoff
	verbose := c.verbose
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "cache: create dir for %s", path)
	}

	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "cache: cancelled")
		}
		c.mu.Lock()
		lim := c.limiter
		c.mu.Unlock()
		if err := lim.Wait(ctx); err != nil {
			return eris.Wrap(err, "cache: limiter wait")
		}

		status, err := c.fetchOnce(ctx, url, path, headers, verbose)
		if err == nil {
			return nil
		}
		lastErr = err

		// 4xx is the server telling us the file does not exist or we are
		// not allowed to have it; retrying cannot help.
		if status >= 400 && status < 500 {
			return err
		}
		if attempt < retries {
			sleep := time.Duration(backoff * float64(uint(1)<<uint(attempt-1)) * float64(time.Second))
			zap.L().Warn("cache: download failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("sleep", sleep),
				zap.Error(err),
			)
			t := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				t.Stop()
				return eris.Wrap(ctx.Err(), "cache: cancelled")
			case <-t.C:
			}
		}
	}
	return lastErr
}

func (c *Cache) fetchOnce(ctx context.Context, url, path string, headers map[string]string, verbose bool) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &RemoteFetchError{URL: url, Err: eris.Wrap(err, "create request")}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &RemoteFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if verbose {
		zap.L().Info("cache: download", zap.Int("status", resp.StatusCode), zap.String("url", url))
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, &RemoteFetchError{URL: url, Status: resp.StatusCode}
	}

	// Write to a temp file and rename so concurrent readers never observe a
	// partial file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, eris.Wrapf(err, "cache: create temp for %s", path)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return 0, &RemoteFetchError{URL: url, Err: eris.Wrap(err, "read body")}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return 0, eris.Wrapf(err, "cache: close temp for %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return 0, eris.Wrapf(err, "cache: rename into %s", path)
	}
	return resp.StatusCode, nil
}
