package scanner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/failwarn/corstester/internal/config"
	"github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/netutil"
	"github.com/failwarn/corstester/internal/validate"
)

// Drained from every response so keep-alive connections can be reused.
const maxDrain = 1 << 20

// Response holds the parts of an HTTP response CORS evaluation needs.
type Response struct {
	StatusCode int
	Header     http.Header
	URL        string
	Duration   time.Duration
}

// Requester sends preflight and actual cross-origin requests to one target.
type Requester struct {
	client    *http.Client
	target    *url.URL
	headers   map[string]string
	userAgent string
}

// NewRequester creates a Requester for opts.URL from the provided options.
func NewRequester(opts *config.Options) (*Requester, error) {
	client, err := NewClient(opts)
	if err != nil {
		return nil, err
	}
	return NewRequesterWithClient(client, opts.URL, opts.Headers, opts.UserAgent)
}

// NewRequesterWithClient binds an existing client to target. Requesters
// sharing a client share its connection pool.
func NewRequesterWithClient(client *http.Client, target string, headers map[string]string, userAgent string) (*Requester, error) {
	u, err := validate.URL(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q is not http or https", validate.ErrInvalidURL, u.Scheme)
	}
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	return &Requester{
		client:    client,
		target:    u,
		headers:   headers,
		userAgent: userAgent,
	}, nil
}

// NewClient builds the HTTP client used to send probes: timeout, proxy,
// TLS verification and, with BlockPrivate, a dialer that refuses
// non-public addresses.
func NewClient(opts *config.Options) (*http.Client, error) {
	threads := opts.Threads
	if threads <= 0 {
		threads = 1
	}

	dial := (&net.Dialer{Timeout: opts.Timeout}).DialContext
	if opts.BlockPrivate {
		dial = netutil.GuardedDialer(opts.Timeout)
	}

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.Insecure},
		DialContext:         dial,
		MaxIdleConnsPerHost: threads,
		MaxIdleConns:        threads,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}

	// Browsers never follow redirects on a preflight, and a redirected
	// actual request is re-checked against the new origin.
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

// Target returns the URL every request is sent to.
func (r *Requester) Target() *url.URL {
	u := *r.target
	return &u
}

// Preflight sends the OPTIONS request a browser would send before item.
func (r *Requester) Preflight(ctx context.Context, item WorkItem, requestHeaders []string) (*Response, error) {
	h := http.Header{}
	h.Set("Accept", "*/*")
	h.Set(cors.HeaderOrigin, item.Origin)
	h.Set(cors.HeaderRequestMethod, item.Method)
	if v := requestHeaderList(requestHeaders); v != "" {
		h.Set(cors.HeaderRequestHeaders, v)
	}
	return r.do(ctx, http.MethodOptions, h)
}

// Actual sends item's method with its Origin and the configured custom
// headers, as the page's own fetch would.
func (r *Requester) Actual(ctx context.Context, item WorkItem) (*Response, error) {
	h := http.Header{}
	for k, v := range r.headers {
		h.Set(k, v)
	}
	h.Set(cors.HeaderOrigin, item.Origin)
	return r.do(ctx, item.Method, h)
}

func (r *Requester) do(ctx context.Context, method string, h http.Header) (*Response, error) {
	targetURL := r.target.String()

	req, err := http.NewRequestWithContext(ctx, method, targetURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = h
	req.Header.Set("User-Agent", r.userAgent)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain)); err != nil {
		return nil, fmt.Errorf("reading %s response from %s: %w", method, targetURL, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		URL:        targetURL,
		Duration:   time.Since(start),
	}, nil
}

// requestHeaderList formats header names the way browsers do for
// Access-Control-Request-Headers: lowercase, sorted, comma separated.
func requestHeaderList(names []string) string {
	if len(names) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
