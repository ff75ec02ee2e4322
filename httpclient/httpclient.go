package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"td365/cookiejar"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:136.0) Gecko/20100101 Firefox/136.0"

// bodySizeLimit is the maximum response body this client will read before
// giving up (128 MiB).
const bodySizeLimit = 128 * 1024 * 1024

var tracer = otel.Tracer("td365/httpclient")

// HTTPError wraps a transport-level failure (DNS, dial, TLS, read/write).
// Non-2xx/3xx statuses are not HTTPErrors; those are the REST layer's
// concern.
type HTTPError struct {
	Op  string
	Err error
}

func (e *HTTPError) Error() string { return fmt.Sprintf("httpclient: %s: %v", e.Op, e.Err) }
func (e *HTTPError) Unwrap() error { return e.Err }

// Client owns one host's persistent connection, default headers, and
// cookie jar. It mirrors the teacher's one-connection-per-host habit via
// MaxConnsPerHost rather than a hand-rolled single net.Conn.
type Client struct {
	host   string
	scheme string
	http   *http.Client
	jar    *cookiejar.Jar

	defaultHeaders http.Header
}

// New opens a Client against host, loading or creating a cookie jar file
// named "<host>.cookies" in dir. host is ordinarily a bare hostname (e.g.
// "td365demo.com"), defaulting to https; a "scheme://host" form overrides
// the scheme, which exists chiefly so tests can point a Client at a local
// plaintext httptest server.
func New(host, cookieDir string) (*Client, error) {
	scheme := "https"
	if idx := strings.Index(host, "://"); idx >= 0 {
		scheme = host[:idx]
		host = host[idx+3:]
	}

	jar, err := cookiejar.Load(cookiejarPath(cookieDir, host))
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		DisableCompression:  true, // gzip is inflated manually so Content-Encoding stays visible
		DialContext:         dialContext,
		DialTLSContext:      dialTLSContext(host),
	}

	c := &Client{
		host:   host,
		scheme: scheme,
		http: &http.Client{
			Transport: transport,
			// Redirects are returned to the caller as-is; restapi walks them itself.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		jar: jar,
	}
	c.defaultHeaders = http.Header{
		"User-Agent":      {userAgent},
		"Accept":          {"*/*"},
		"Accept-Language": {"en-US,en;q=0.5"},
		"Content-Type":    {"application/json; charset=utf-8"},
		"Accept-Encoding": {"gzip"},
		"Connection":      {"keep-alive"},
		"Host":            {host},
	}
	return c, nil
}

func cookiejarPath(dir, host string) string {
	if dir == "" {
		return host + ".cookies"
	}
	return dir + "/" + host + ".cookies"
}

// SetDefaultHeader overrides or adds a default header applied to every
// request (used by restapi.Connect to set Origin/Referer/X-Requested-With
// once the OTS session is established).
func (c *Client) SetDefaultHeader(name, value string) {
	c.defaultHeaders.Set(name, value)
}

// SaveCookies persists the jar to disk.
func (c *Client) SaveCookies() error { return c.jar.Save() }

// Cookie returns the named cookie from the jar, or the zero Cookie.
func (c *Client) Cookie(name string) cookiejar.Cookie { return c.jar.Get(name) }

// Do issues method on target (a path or absolute URL) with an optional
// string body, applying default headers, per-call header overrides, and
// the cookie jar. The returned *http.Response body has already been
// gzip-inflated if necessary and is safe to read fully; callers must still
// Close it.
func (c *Client) Do(ctx context.Context, method, target string, headers http.Header, body string) (*http.Response, error) {
	ctx, span := tracer.Start(ctx, method+" "+target)
	defer span.End()

	u, err := c.resolveTarget(target)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &HTTPError{Op: "resolve target", Err: err}
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &HTTPError{Op: "build request", Err: err}
	}

	for name, values := range c.defaultHeaders {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	if method == http.MethodPost && body == "" {
		req.Header.Set("Content-Length", "0")
	}

	c.jar.Apply(req)

	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.target", target))

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &HTTPError{Op: "send", Err: err}
	}

	c.jar.Update(resp)

	if err := inflateIfGzipped(resp); err != nil {
		resp.Body.Close()
		span.SetStatus(codes.Error, err.Error())
		return nil, &HTTPError{Op: "inflate body", Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) resolveTarget(target string) (*url.URL, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return url.Parse(target)
	}
	return url.Parse(c.scheme + "://" + c.host + target)
}

// inflateIfGzipped replaces resp.Body with a decompressed reader when
// Content-Encoding is gzip, capping the decoded size at bodySizeLimit.
func inflateIfGzipped(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, bodySizeLimit+1)

	if resp.Header.Get("Content-Encoding") != "gzip" {
		buf, err := io.ReadAll(limited)
		if err != nil {
			return err
		}
		if len(buf) > bodySizeLimit {
			return fmt.Errorf("response body exceeds %d byte limit", bodySizeLimit)
		}
		resp.Body = io.NopCloser(bytes.NewReader(buf))
		return nil
	}

	gz, err := gzip.NewReader(limited)
	if err != nil {
		return err
	}
	defer gz.Close()

	buf, err := io.ReadAll(io.LimitReader(gz, bodySizeLimit+1))
	if err != nil {
		return err
	}
	if len(buf) > bodySizeLimit {
		return fmt.Errorf("response body exceeds %d byte limit", bodySizeLimit)
	}
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	return nil
}

// dialContext and dialTLSContext resolve through the PROXY environment
// variable when set, matching the venue client's interception seam.
func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	return dialer.DialContext(ctx, network, proxiedAddr(addr))
}

func dialTLSContext(host string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: 30 * time.Second}
		conn, err := dialer.DialContext(ctx, network, proxiedAddr(addr))
		if err != nil {
			return nil, err
		}
		tlsConn := tls.Client(conn, tlsConfig(host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}

func tlsConfig(host string) *tls.Config {
	cfg := &tls.Config{ServerName: host}
	if keylog := os.Getenv("SSLKEYLOGFILE"); keylog != "" {
		if w, err := openKeylogAppend(keylog); err == nil {
			cfg.KeyLogWriter = w
		}
	}
	return cfg
}

func openKeylogAppend(path string) (io.Writer, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// proxiedAddr overrides host:port with the PROXY environment variable
// when set, defaulting its port to 8080. PROXY may be a bare "host:port"
// or a full URL; either form is accepted.
func proxiedAddr(addr string) string {
	proxy := os.Getenv("PROXY")
	if proxy == "" {
		return addr
	}

	if u, err := url.Parse(proxy); err == nil && u.Host != "" {
		if u.Port() == "" {
			return net.JoinHostPort(u.Hostname(), "8080")
		}
		return u.Host
	}

	if !strings.Contains(proxy, ":") {
		return net.JoinHostPort(proxy, "8080")
	}
	return proxy
}
