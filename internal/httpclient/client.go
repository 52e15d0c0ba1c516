package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxBodySnippet bounds how much of a response body is kept for failure logs.
const maxBodySnippet = 1024

// AuthProvider supplies authentication tokens and injects them into HTTP requests.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
	InjectHeader(ctx context.Context, req *http.Request) error
	Close() error
}

// RequestBuilder creates requests for one endpoint with a fixed method and headers.
type RequestBuilder struct {
	method       string
	target       string
	headers      http.Header
	authProvider AuthProvider
}

func NewRequestBuilder(method, target string, headers map[string]string) (*RequestBuilder, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method = strings.TrimSpace(method)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	canonical := http.Header{}
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		canonical.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: canonical,
	}, nil
}

// WithAuth returns the builder with provider injecting credentials into every request.
func (b *RequestBuilder) WithAuth(provider AuthProvider) *RequestBuilder {
	b.authProvider = provider
	return b
}

func (b *RequestBuilder) Method() string { return b.method }

func (b *RequestBuilder) Target() string { return b.target }

// Build creates a request carrying body, which may be nil.
func (b *RequestBuilder) Build(ctx context.Context, body []byte) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		return nil, err
	}

	req.Header = make(http.Header, len(b.headers))
	for key, values := range b.headers {
		for _, val := range values {
			req.Header.Add(key, val)
		}
	}

	if b.authProvider != nil {
		if err := b.authProvider.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}

	return req, nil
}

// Response summarizes a completed exchange; the body has already been drained.
type Response struct {
	Status        int
	Duration      time.Duration
	BytesSent     int64
	BytesReceived int64
	Body          string // first bytes of the body, kept for failure logs
}

// Send executes req, reads the whole body so the connection can be reused, and
// measures the time from dispatch until the last body byte was read.
func Send(client *http.Client, req *http.Request) (Response, error) {
	var res Response
	if req.ContentLength > 0 {
		res.BytesSent = req.ContentLength
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		res.Duration = time.Since(start)
		return res, err
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	var snippet bytes.Buffer
	n, err := io.Copy(&limitedWriter{buf: &snippet, limit: maxBodySnippet}, resp.Body)
	res.Duration = time.Since(start)
	res.BytesReceived = n
	res.Body = snippet.String()
	if err != nil {
		return res, fmt.Errorf("read response body: %w", err)
	}
	return res, nil
}

type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.limit - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

// NewClient returns a client whose transport keeps up to maxConns connections
// per host alive so VUs do not pay a handshake per request.
func NewClient(timeout time.Duration, maxConns int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxConns <= 0 {
		maxConns = 32
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxConns * 2,
		MaxIdleConnsPerHost:   maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
