// Package httpclient is the transport layer of the access layer. It builds
// requests against a base URL, sends them through a pluggable Transport and
// hands back the raw status, headers and body. Classification of responses
// is left to the caller except for DoRequest, which maps error statuses to
// HTTPError for simple JSON services.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Transport sends a single HTTP request. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOptions contains options for configuring the default transport.
type ClientOptions struct {
	DisableCertValidation bool          // skips TLS certificate validation
	Timeout               time.Duration // zero means no client-side timeout
}

// NewTransport returns an *http.Client configured with opts.
func NewTransport(opts ClientOptions) *http.Client {
	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.DisableCertValidation {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}
	return httpClient
}

// HTTPError represents an error response with HTTP status code and message.
type HTTPError struct {
	StatusCode int    // HTTP status code of the error
	Message    string // error message or response body
	Body       []byte // raw response body
}

// Error implements the error interface for HTTPError.
func (e *HTTPError) Error() string {
	return e.Message
}

// RequestOptions describes one request.
type RequestOptions struct {
	Method    string      // HTTP method
	Path      string      // path relative to the base URL
	RawQuery  string      // encoded query, with or without the leading '?'
	Header    http.Header // extra headers
	Body      []byte      // optional request body
	Keepalive bool        // detach from caller cancellation so the request outlives it
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// IsJSON reports whether the response content type is JSON (application/json
// or any +json suffix type).
func (r *Response) IsJSON() bool {
	return IsJSONContentType(r.Header.Get("Content-Type"))
}

// StatusText returns the reason phrase of the response.
func (r *Response) StatusText() string {
	if text := strings.TrimSpace(strings.TrimPrefix(r.Status, strconv.Itoa(r.StatusCode))); text != "" {
		return text
	}
	return http.StatusText(r.StatusCode)
}

// IsJSONContentType reports whether a Content-Type header value denotes JSON.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Client sends requests relative to a base URL.
type Client struct {
	baseURL   string
	transport Transport
}

// NewClient creates a client for baseURL. A nil transport uses a default
// *http.Client.
func NewClient(baseURL string, transport Transport) *Client {
	if transport == nil {
		transport = NewTransport(ClientOptions{})
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
	}
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves p and rawQuery against the base URL.
func (c *Client) URL(p string, rawQuery string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %v", err)
	}
	if p != "" {
		trailing := strings.HasSuffix(p, "/")
		u.Path = path.Join("/", u.Path, p)
		if trailing && !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
	}
	u.RawQuery = strings.TrimPrefix(rawQuery, "?")
	return u.String(), nil
}

// Send issues the request and reads the whole response. Any status code is
// returned as a Response; only transport failures produce an error.
func (c *Client) Send(ctx context.Context, opts RequestOptions) (*Response, error) {
	if opts.Keepalive {
		ctx = context.WithoutCancel(ctx)
	}
	target, err := c.URL(opts.Path, opts.RawQuery)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	for k, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	return c.roundTrip(req)
}

func (c *Client) roundTrip(req *http.Request) (*Response, error) {
	resp, err := c.transport.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// DoRequest sends a request with a JSON body and maps error statuses to
// *HTTPError. The message is taken from the body's "error" or "message"
// field when present, else the body text, else the status text.
func (c *Client) DoRequest(ctx context.Context, opts RequestOptions) (*Response, error) {
	if opts.Header == nil {
		opts.Header = http.Header{}
	}
	if opts.Body != nil && opts.Header.Get("Content-Type") == "" {
		opts.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Send(ctx, opts)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	return nil, NewHTTPError(resp)
}

// NewHTTPError builds an *HTTPError from a non-success response.
func NewHTTPError(resp *Response) *HTTPError {
	msg := ""
	if gjson.ValidBytes(resp.Body) {
		for _, field := range []string{"error", "message"} {
			if v := gjson.GetBytes(resp.Body, field); v.Type == gjson.String && v.String() != "" {
				msg = v.String()
				break
			}
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(resp.Body))
	}
	if msg == "" {
		msg = resp.StatusText()
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Body:       resp.Body,
	}
}
