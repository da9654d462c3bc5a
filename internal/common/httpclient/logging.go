package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// requestIDHeader is read from outgoing requests to correlate log lines.
const requestIDHeader = "X-Request-ID"

// LoggingTransport logs every request sent through Next and its outcome.
type LoggingTransport struct {
	Next Transport
}

// NewLoggingTransport wraps next. A nil next uses a default *http.Client.
func NewLoggingTransport(next Transport) *LoggingTransport {
	if next == nil {
		next = NewTransport(ClientOptions{})
	}
	return &LoggingTransport{Next: next}
}

// Do implements Transport.
func (t *LoggingTransport) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()
	logger := log.Ctx(ctx).With().
		Str("request_id", req.Header.Get(requestIDHeader)).
		Str("requestMethod", req.Method).
		Str("requestURL", req.URL.Redacted()).
		Logger()
	logger.Debug().Msg("outgoing request")

	resp, err := t.Next.Do(req)
	duration := fmt.Sprintf("%dms", time.Since(start).Milliseconds())
	if err != nil {
		logger.Warn().Err(err).Str("duration", duration).Msg("request failed")
		return nil, err
	}
	logger.Debug().Int("status", resp.StatusCode).Str("duration", duration).Msg("request completed")
	return resp, nil
}

var _ Transport = &LoggingTransport{}
