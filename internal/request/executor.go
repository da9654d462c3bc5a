// Package request issues authenticated requests against the API and turns
// responses into results or typed errors. Every call waits for the session
// to be ready, carries the current bearer token, and mirrors failures to the
// host's notifier.
package request

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tansive/apiaccess/internal/common/hostenv"
	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tansive/apiaccess/internal/common/logtrace"
	"github.com/tansive/apiaccess/internal/session"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

const DefaultGraphQLPath = "/graphql"

// Descriptor describes one request.
type Descriptor struct {
	Method string
	Path   string
	Body   any // JSON encoded when non-nil
	Query  Query

	// InlineValidation returns a 422 response as a Result instead of an
	// error.
	InlineValidation bool

	// Keepalive detaches the request from the caller's cancellation so it
	// completes even while the host shuts down.
	Keepalive bool
}

// LoginRedirectFunc computes where to send the user after a 401, given the
// session and the location to come back to.
type LoginRedirectFunc func(slots session.Slots, location string) string

// Executor is safe for concurrent use.
type Executor struct {
	http          *httpclient.Client
	session       *session.Session
	navigator     hostenv.Navigator
	notifier      hostenv.Notifier
	loginRedirect LoginRedirectFunc
	graphqlPath   string
}

// Option configures an Executor.
type Option func(*Executor)

// WithNavigator sets the navigator used for the 401 redirect.
func WithNavigator(n hostenv.Navigator) Option {
	return func(e *Executor) { e.navigator = n }
}

// WithNotifier sets the notifier failures are mirrored to.
func WithNotifier(n hostenv.Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

// WithLoginRedirect sets the function computing the login URL after a 401.
func WithLoginRedirect(f LoginRedirectFunc) Option {
	return func(e *Executor) { e.loginRedirect = f }
}

// WithGraphQLPath sets the GraphQL endpoint path.
func WithGraphQLPath(p string) Option {
	return func(e *Executor) { e.graphqlPath = p }
}

// NewExecutor creates an executor sending through client with the tokens of
// s.
func NewExecutor(client *httpclient.Client, s *session.Session, opts ...Option) *Executor {
	e := &Executor{
		http:        client,
		session:     s,
		notifier:    hostenv.LogNotifier{},
		graphqlPath: DefaultGraphQLPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get issues a GET request.
func (e *Executor) Get(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodGet, Path: path, Body: body, Query: q})
}

// Post issues a POST request.
func (e *Executor) Post(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodPost, Path: path, Body: body, Query: q})
}

// Put issues a PUT request.
func (e *Executor) Put(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodPut, Path: path, Body: body, Query: q})
}

// Patch issues a PATCH request.
func (e *Executor) Patch(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodPatch, Path: path, Body: body, Query: q})
}

// Delete issues a DELETE request.
func (e *Executor) Delete(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodDelete, Path: path, Body: body, Query: q})
}

// ValidatedPost is Post with inline validation.
func (e *Executor) ValidatedPost(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodPost, Path: path, Body: body, Query: q, InlineValidation: true})
}

// ValidatedPut is Put with inline validation.
func (e *Executor) ValidatedPut(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodPut, Path: path, Body: body, Query: q, InlineValidation: true})
}

// ValidatedPatch is Patch with inline validation.
func (e *Executor) ValidatedPatch(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return e.Do(ctx, Descriptor{Method: http.MethodPatch, Path: path, Body: body, Query: q, InlineValidation: true})
}

// Do issues the request described by d.
func (e *Executor) Do(ctx context.Context, d Descriptor) (*Result, error) {
	var body []byte
	if d.Body != nil {
		b, err := json.Marshal(d.Body)
		if err != nil {
			return nil, e.fail(ctx, &accesserr.TransportError{Cause: err})
		}
		body = b
	}
	return e.send(ctx, d, body)
}

// send issues d with an already encoded body.
func (e *Executor) send(ctx context.Context, d Descriptor, body []byte) (*Result, error) {
	if d.Keepalive {
		ctx = context.WithoutCancel(ctx)
	}
	if err := e.session.Ready(ctx); err != nil {
		return nil, e.fail(ctx, err)
	}

	requestID := logtrace.NewRequestID()
	ctx = logtrace.WithRequestID(ctx, requestID)

	header := e.authHeader(requestID)
	header.Set("Accept", "application/json")
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := e.http.Send(ctx, httpclient.RequestOptions{
		Method:    d.Method,
		Path:      d.Path,
		RawQuery:  StringifyQuery(d.Query),
		Header:    header,
		Body:      body,
		Keepalive: d.Keepalive,
	})
	if err != nil {
		return nil, e.fail(ctx, &accesserr.TransportError{Cause: err})
	}
	log.Ctx(ctx).Debug().
		Str("method", d.Method).
		Str("path", d.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request completed")

	return e.classify(ctx, resp, requestID, d.InlineValidation)
}

func (e *Executor) authHeader(requestID string) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.session.Token())
	header.Set(HeaderRequestID, requestID)
	return header
}

func (e *Executor) classify(ctx context.Context, resp *httpclient.Response, requestID string, inlineValidation bool) (*Result, error) {
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok || (inlineValidation && resp.StatusCode == http.StatusUnprocessableEntity) {
		if resp.IsJSON() && len(resp.Body) > 0 && !gjson.ValidBytes(resp.Body) {
			return nil, e.fail(ctx, &accesserr.TransportError{Cause: errors.New("malformed JSON response")})
		}
		return newResult(resp, requestID), nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, e.unauthorized(ctx)
	}

	return nil, e.fail(ctx, &accesserr.RemoteRejectionError{
		Status:  resp.StatusCode,
		Message: rejectionMessage(resp),
		Body:    resp.Body,
	})
}

// unauthorized sends the host to the login page. The failure is not
// mirrored to the notifier while navigation takes over; without a way to
// redirect the user is told instead.
func (e *Executor) unauthorized(ctx context.Context) error {
	uerr := &accesserr.UnauthorizedError{}
	if e.loginRedirect == nil || e.navigator == nil {
		return e.fail(ctx, uerr)
	}
	uerr.LoginURL = e.loginRedirect(e.session.Snapshot(), e.navigator.Location())
	e.navigator.Redirect(uerr.LoginURL)
	log.Ctx(ctx).Info().Msg("unauthorized, redirecting to login")
	return uerr
}

// rejectionMessage picks the most specific message a response offers: a
// JSON "message", the first element's "message" of a JSON array, the text
// body, and finally the status text.
func rejectionMessage(resp *httpclient.Response) string {
	if resp.IsJSON() {
		for _, path := range []string{"message", "0.message"} {
			if v := gjson.GetBytes(resp.Body, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	} else if text := strings.TrimSpace(string(resp.Body)); text != "" {
		return text
	}
	return resp.StatusText()
}

func (e *Executor) fail(ctx context.Context, err error) error {
	log.Ctx(ctx).Warn().Err(err).Int("status", statusOf(err)).Msg("request failed")
	e.notifier.Notify(err.Error())
	return err
}

func statusOf(err error) int {
	var rejected *accesserr.RemoteRejectionError
	if errors.As(err, &rejected) {
		return rejected.Status
	}
	var uploadErr *accesserr.UploadError
	if errors.As(err, &uploadErr) {
		return uploadErr.Status
	}
	if errors.Is(err, accesserr.ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	return 0
}
