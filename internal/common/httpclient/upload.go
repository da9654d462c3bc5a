package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// IndeterminateRatio is reported as Progress.Ratio when the total upload
// size is unknown.
const IndeterminateRatio = -1.0

// Progress is a snapshot of an upload in flight.
type Progress struct {
	Loaded int64   // bytes sent so far
	Total  int64   // total bytes, or -1 when unknown
	Ratio  float64 // Loaded/Total, or IndeterminateRatio
}

// ProgressFunc receives progress ticks. A nil *Progress means the upload is
// no longer active (it finished, failed or was aborted).
type ProgressFunc func(p *Progress)

// UploadOptions describes a streaming upload.
type UploadOptions struct {
	Method      string      // defaults to POST
	Path        string      // path relative to the base URL
	Header      http.Header // extra headers
	ContentType string      // body content type, e.g. a multipart boundary type
	Body        io.Reader   // request body
	Size        int64       // body size in bytes, or -1 when unknown
}

// UploadWithProgress streams opts.Body to the server and reports progress on
// every write to the connection. Non-2xx responses are returned as
// *HTTPError; aborts and network failures are returned as-is. onProgress is
// always called with nil before UploadWithProgress returns.
func (c *Client) UploadWithProgress(ctx context.Context, opts UploadOptions, onProgress ProgressFunc) (*Response, error) {
	if onProgress == nil {
		onProgress = func(*Progress) {}
	}
	defer onProgress(nil)

	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}
	target, err := c.URL(opts.Path, "")
	if err != nil {
		return nil, err
	}

	body := &progressReader{r: opts.Body, total: opts.Size, report: onProgress}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	if opts.Size >= 0 {
		req.ContentLength = opts.Size
	}
	for k, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}

	resp, err := c.roundTrip(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("upload aborted: %w", ctxErr)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewHTTPError(resp)
	}
	return resp, nil
}

// progressReader counts bytes as the transport consumes the body.
type progressReader struct {
	r      io.Reader
	total  int64
	report ProgressFunc

	mu     sync.Mutex
	loaded int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.loaded += int64(n)
		snap := Progress{Loaded: p.loaded, Total: p.total, Ratio: IndeterminateRatio}
		p.mu.Unlock()
		if snap.Total > 0 {
			snap.Ratio = float64(snap.Loaded) / float64(snap.Total)
		} else {
			snap.Total = -1
		}
		p.report(&snap)
	}
	return n, err
}

// Close closes the wrapped body when it is closable, so a streaming producer
// behind it is released once the transport is done with the request.
func (p *progressReader) Close() error {
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
