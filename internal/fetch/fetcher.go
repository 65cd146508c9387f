package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// NetworkError 表示请求未能完成（离线、DNS、连接中断、超时）。
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err carries a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewClient 返回共享 http.Client。timeout 为 0 时不设整体超时，取消交由调用方的 context。
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// HTTPFetcher fetches over HTTP and classifies each response against origin.
type HTTPFetcher struct {
	client *http.Client
	origin *url.URL
}

// NewHTTPFetcher builds a fetcher. origin decides which responses are same-origin.
func NewHTTPFetcher(client *http.Client, origin *url.URL) *HTTPFetcher {
	if client == nil {
		client = NewClient(0)
	}
	return &HTTPFetcher{client: client, origin: origin}
}

// Fetch executes req and buffers the whole body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	CopyHeaders(httpReq.Header, req.Header)
	httpReq.Header.Del("Host")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, URL: req.URL, Err: err}
	}

	header := http.Header{}
	CopyHeaders(header, resp.Header)

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   payload,
		Type:   f.deliveryType(final, header),
		URL:    final,
	}, nil
}

// deliveryType: same origin → basic；跨域且带 ACAO → cors；否则 opaque。
func (f *HTTPFetcher) deliveryType(rawURL string, header http.Header) ResponseType {
	target, err := url.Parse(rawURL)
	if err != nil {
		return TypeOpaque
	}
	if SameOrigin(f.origin, target) {
		return TypeBasic
	}
	if header.Get("Access-Control-Allow-Origin") != "" {
		return TypeCORS
	}
	return TypeOpaque
}

// SameOrigin compares scheme and host (including port).
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// CopyHeaders 将 src 中允许透传的头复制到 dst，自动忽略 hop-by-hop 字段。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// IsHopByHopHeader reports whether the header should be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}
