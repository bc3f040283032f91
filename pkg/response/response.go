// Package response holds the normalized view of an HTTP exchange that
// signatures are evaluated against, together with the Fetcher used to retrieve
// additional pages lazily.
package response

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout applies to page fetches when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ErrNoFetcher is returned for pages that are not cached when the Response has
// no Fetcher.
var ErrNoFetcher = errors.New("no fetcher configured")

// Page is a retrieved body together with the status it was served with.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

type pageResult struct {
	page *Page
	err  error
}

// Response is read-only after construction except for its page cache, which
// fetches each path at most once. Concurrent callers asking for the same path
// wait for the in-flight fetch.
type Response struct {
	finalURL   *url.URL
	statusCode int
	meta       map[string]string
	cookies    []*http.Cookie

	fetcher Fetcher
	timeout time.Duration

	mu     sync.Mutex
	pages  map[string]pageResult
	flight singleflight.Group
}

// Option configures a Response.
type Option func(*Response)

// WithFetcher enables lazy retrieval of pages other than the final URL.
func WithFetcher(f Fetcher) Option {
	return func(r *Response) { r.fetcher = f }
}

// WithTimeout sets the per-fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Response) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New builds a Response from a completed exchange. The exchange body is cached
// as the page for the final URL so rules addressing that path do not refetch.
func New(ex *Exchange, opts ...Option) (*Response, error) {
	if ex == nil {
		return nil, fmt.Errorf("exchange is nil")
	}
	u, err := url.Parse(ex.URL)
	if err != nil {
		return nil, fmt.Errorf("parse final URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("final URL %q is not absolute", ex.URL)
	}

	r := &Response{
		finalURL:   u,
		statusCode: ex.StatusCode,
		meta:       normalizeHeader(ex.Header),
		cookies:    (&http.Response{Header: ex.Header}).Cookies(),
		timeout:    DefaultTimeout,
		pages:      make(map[string]pageResult),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.pages[u.RequestURI()] = toResult(u.String(), ex)
	return r, nil
}

// Capture fetches target and wraps the exchange, keeping fetcher for later pages.
func Capture(ctx context.Context, fetcher Fetcher, target string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ex, err := fetcher.Fetch(fetchCtx, target, timeout)
	if err != nil {
		return nil, asFetchError(target, err)
	}
	if ex.URL == "" {
		ex.URL = target
	}
	return New(ex, WithFetcher(fetcher), WithTimeout(timeout))
}

// normalizeHeader lowercases header names. Keys differing only in case are
// merged in byte order of the original key so the joined value is stable.
func normalizeHeader(h http.Header) map[string]string {
	meta := make(map[string]string, len(h))
	for _, k := range slices.Sorted(maps.Keys(h)) {
		key := strings.ToLower(k)
		values := h[k]
		if prev, ok := meta[key]; ok {
			values = append([]string{prev}, values...)
		}
		meta[key] = strings.Join(values, ", ")
	}
	return meta
}

func toResult(u string, ex *Exchange) pageResult {
	if ex.StatusCode < http.StatusOK || ex.StatusCode >= http.StatusMultipleChoices {
		return pageResult{err: &FetchError{URL: u, StatusCode: ex.StatusCode}}
	}
	return pageResult{page: &Page{URL: u, StatusCode: ex.StatusCode, Body: ex.Body}}
}

// FinalURL returns a copy of the URL the exchange ended at.
func (r *Response) FinalURL() *url.URL {
	u := *r.finalURL
	return &u
}

// StatusCode returns the status of the captured exchange.
func (r *Response) StatusCode() int {
	return r.statusCode
}

// Meta returns a header value by case-insensitive name. Multiple values are
// joined with ", ".
func (r *Response) Meta(field string) (string, bool) {
	v, ok := r.meta[strings.ToLower(field)]
	return v, ok
}

// MetaFields returns a copy of all meta fields keyed by lowercase name.
func (r *Response) MetaFields() map[string]string {
	out := make(map[string]string, len(r.meta))
	for k, v := range r.meta {
		out[k] = v
	}
	return out
}

// Cookies returns the cookies set by the captured exchange.
func (r *Response) Cookies() []*http.Cookie {
	return append([]*http.Cookie(nil), r.cookies...)
}

// Page returns the body served at path on the target host. Non-2xx answers and
// transport failures are returned as *FetchError. Outcomes are memoized per
// path, except when ctx was cancelled before the fetch completed.
func (r *Response) Page(ctx context.Context, path string) (*Page, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, &FetchError{URL: path, Err: err}
	}
	target := r.finalURL.ResolveReference(ref)
	key := target.RequestURI()

	if res, ok := r.cached(key); ok {
		return res.page, res.err
	}
	if r.fetcher == nil {
		return nil, &FetchError{URL: target.String(), Err: ErrNoFetcher}
	}

	v, _, _ := r.flight.Do(key, func() (any, error) {
		if res, ok := r.cached(key); ok {
			return res, nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		var res pageResult
		ex, err := r.fetcher.Fetch(fetchCtx, target.String(), r.timeout)
		if err != nil {
			res = pageResult{err: asFetchError(target.String(), err)}
		} else {
			res = toResult(target.String(), ex)
		}

		if ctx.Err() == nil {
			r.mu.Lock()
			r.pages[key] = res
			r.mu.Unlock()
		}
		return res, nil
	})

	res := v.(pageResult)
	return res.page, res.err
}

func (r *Response) cached(key string) (pageResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.pages[key]
	return res, ok
}

func asFetchError(u string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrFetchTimeout, err)
	}
	return &FetchError{URL: u, Err: err}
}
