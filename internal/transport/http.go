// Package transport performs single HTTP exchanges against the companion
// service. It never interprets bodies; callers decide what a response means.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// ErrBodyTooLarge is returned when a response body exceeds the read limit.
var ErrBodyTooLarge = errors.New("response body too large")

// Request describes one exchange. A non-empty PostURL turns it into a
// form-encoded POST to that URL; otherwise URL is fetched with GET.
type Request struct {
	URL     string
	PostURL string
	Form    url.Values
}

// Method returns the HTTP method the request will use.
func (r Request) Method() string {
	if r.PostURL != "" {
		return http.MethodPost
	}
	return http.MethodGet
}

func (r Request) target() string {
	if r.PostURL != "" {
		return r.PostURL
	}
	return r.URL
}

// Response is what the upstream returned, plus the rotated session.
type Response struct {
	OK      bool
	Status  string
	Session Session
	Body    string
}

// Transport sends one request with a session and returns the new session.
// Connection-level failures are returned as errors, never folded into Body.
type Transport interface {
	Send(ctx context.Context, req Request, session Session) (Response, error)
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	base      http.RoundTripper
	timeout   time.Duration
	userAgent string
	maxBody   int64
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithRoundTripper swaps the underlying round tripper (tests, proxies).
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(t *HTTPTransport) { t.base = rt }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// WithMaxBody changes the response body limit.
func WithMaxBody(n int64) Option {
	return func(t *HTTPTransport) { t.maxBody = n }
}

// NewHTTPTransport creates a transport with a per-call timeout.
func NewHTTPTransport(timeout time.Duration, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		base:    http.DefaultTransport,
		timeout: timeout,
		maxBody: maxBodyBytes,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send performs the exchange. A fresh cookie jar is seeded from session so the
// caller's Session is never mutated.
func (t *HTTPTransport) Send(ctx context.Context, req Request, session Session) (Response, error) {
	target, err := url.Parse(req.target())
	if err != nil {
		return Response{Session: session}, fmt.Errorf("parse url %q: %w", req.target(), err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return Response{Session: session}, fmt.Errorf("create cookie jar: %w", err)
	}
	jar.SetCookies(target, rootScoped(session))

	var body io.Reader
	if req.Method() == http.MethodPost {
		body = strings.NewReader(req.Form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), target.String(), body)
	if err != nil {
		return Response{Session: session}, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	client := &http.Client{Jar: jar, Timeout: t.timeout, Transport: t.base}
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{Session: session}, fmt.Errorf("%s %s: %w", req.Method(), target.Redacted(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil && !errors.Is(err, io.EOF) {
		return Response{Session: session}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > t.maxBody {
		return Response{Session: session}, fmt.Errorf("%s %s: %w (limit %d bytes)", req.Method(), target.Redacted(), ErrBodyTooLarge, t.maxBody)
	}

	return Response{
		OK:      resp.StatusCode >= 200 && resp.StatusCode < 400,
		Status:  resp.Status,
		Session: collect(jar, target, resp.Request.URL),
		Body:    string(data),
	}, nil
}

// rootScoped copies session cookies with Path "/" so the jar sends them on
// every endpoint of the host regardless of which path issued them.
func rootScoped(s Session) []*http.Cookie {
	cookies := s.Cookies()
	for _, c := range cookies {
		c.Path = "/"
		c.Domain = ""
	}
	return cookies
}

// collect reads the jar back for the request URL and the final URL after
// redirects. Later names win.
func collect(jar http.CookieJar, urls ...*url.URL) Session {
	byName := make(map[string]*http.Cookie)
	for _, u := range urls {
		if u == nil {
			continue
		}
		for _, c := range jar.Cookies(u) {
			byName[c.Name] = c
		}
	}
	cookies := make([]*http.Cookie, 0, len(byName))
	for _, c := range byName {
		cookies = append(cookies, c)
	}
	return NewSession(cookies)
}
