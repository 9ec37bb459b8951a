// Package source downloads listing pages from the remote site.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	logx "listingwatch/pkg/logx"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 8 << 20

// Config controls the HTTP side of fetching.
type Config struct {
	Timeout      time.Duration
	MaxPages     int
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	UserAgents   []string
}

// FetchError is a network or HTTP failure. It is always retryable from the
// poller's point of view.
type FetchError struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var errStatus = errors.New("unexpected status")

// ErrBodyTooLarge is returned instead of a silently truncated page.
var ErrBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)

// Page is one downloaded page.
type Page struct {
	URL  string
	Body []byte
}

// Fetcher performs GET requests with rotated browser-like headers.
type Fetcher struct {
	log    logx.Logger
	client *http.Client
	cfg    Config

	// pacing between pagination requests
	limiter *rate.Limiter

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.PageDelayMin < 0 {
		cfg.PageDelayMin = 0
	}
	if cfg.PageDelayMax < cfg.PageDelayMin {
		cfg.PageDelayMax = cfg.PageDelayMin
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}

	// One token per PageDelayMin; jitter on top covers the rest of the window.
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.PageDelayMin > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.PageDelayMin), 1)
	}

	return &Fetcher{
		log:     log,
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: lim,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClient swaps the HTTP client (tests use httptest servers).
// The configured timeout is kept when the client has none.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	if c.Timeout == 0 {
		c.Timeout = f.cfg.Timeout
	}
	f.client = c
	return f
}

// Fetch downloads one page. The request is bounded by the configured timeout
// and by ctx.
func (f *Fetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	for k, v := range f.headers() {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{URL: target, Status: resp.StatusCode, Err: errStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URL: target, Status: resp.StatusCode, Err: err}
	}
	if len(body) > maxBodyBytes {
		return nil, &FetchError{URL: target, Status: resp.StatusCode, Err: ErrBodyTooLarge}
	}
	f.log.Debug("page fetched",
		logx.String("url", target),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)
	return body, nil
}

// FetchAll downloads the first page, then up to MaxPages-1 pagination pages
// returned by links. Pagination requests are paced; a failed extra page is
// logged and skipped, a failed first page fails the call.
func (f *Fetcher) FetchAll(ctx context.Context, first string, links func(body []byte) []string) ([]Page, error) {
	body, err := f.Fetch(ctx, first)
	if err != nil {
		return nil, err
	}
	pages := []Page{{URL: first, Body: body}}
	if f.cfg.MaxPages <= 1 || links == nil {
		return pages, nil
	}

	seen := map[string]struct{}{canonical(first): {}}
	for _, link := range links(body) {
		if len(pages) >= f.cfg.MaxPages {
			break
		}
		key := canonical(link)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if !sameHost(first, link) {
			f.log.Debug("pagination link skipped (foreign host)", logx.String("url", link))
			continue
		}

		if err := f.pace(ctx); err != nil {
			return pages, err
		}
		b, err := f.Fetch(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			f.log.Warn("pagination page failed; skipping", logx.String("url", link), logx.Err(err))
			continue
		}
		pages = append(pages, Page{URL: link, Body: b})
	}
	return pages, nil
}

// pace waits for the limiter and then a random extra delay so the gap between
// pagination requests falls in [PageDelayMin, PageDelayMax].
func (f *Fetcher) pace(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	spread := f.cfg.PageDelayMax - f.cfg.PageDelayMin
	if spread <= 0 {
		return nil
	}
	f.rngMu.Lock()
	d := time.Duration(f.rng.Int63n(int64(spread) + 1))
	f.rngMu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func canonical(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

func sameHost(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}
