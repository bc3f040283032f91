package response

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent identifies webscope requests.
const DefaultUserAgent = "webscope/0.1"

var (
	// ErrFetchTimeout is wrapped by FetchError when a fetch exceeds its deadline.
	ErrFetchTimeout = errors.New("fetch timeout")
)

// Exchange is the raw result of one HTTP round trip.
type Exchange struct {
	URL        string // final URL after redirects
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher retrieves a URL. Implementations must honour both ctx and timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*Exchange, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string, timeout time.Duration) (*Exchange, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string, timeout time.Duration) (*Exchange, error) {
	return f(ctx, url, timeout)
}

// FetchError describes a failed page retrieval. StatusCode is set when the
// server answered with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPFetcher is the net/http backed Fetcher.
type HTTPFetcher struct {
	Client          *http.Client
	UserAgent       string
	MaxBodyBytes    int64
	FollowRedirects bool
}

// HTTPOptions configures NewHTTPFetcher.
type HTTPOptions struct {
	UserAgent          string
	MaxBodyBytes       int64
	FollowRedirects    bool
	InsecureSkipVerify bool
}

// NewHTTPFetcher builds a fetcher with its own transport.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify} //nolint:gosec // scan targets are often self-signed

	client := &http.Client{Transport: transport}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &HTTPFetcher{
		Client:          client,
		UserAgent:       ua,
		MaxBodyBytes:    opts.MaxBodyBytes,
		FollowRedirects: opts.FollowRedirects,
	}
}

// Fetch performs a GET request. Transport failures and deadline overruns are
// returned as *FetchError; any HTTP status is returned as a successful Exchange.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*Exchange, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.UserAgent)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: classify(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	var reader io.Reader = resp.Body
	if f.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, f.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &FetchError{URL: url, Err: classify(ctx, fmt.Errorf("read body: %w", err))}
	}

	return &Exchange{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrFetchTimeout, err)
	}
	return err
}
