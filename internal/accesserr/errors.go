// Package accesserr defines the error taxonomy of the access layer. Every
// failure is a typed struct that unwraps to one of the sentinels below, so
// callers can either match the category with errors.Is or extract details
// with errors.As.
package accesserr

import (
	"fmt"
	"net/http"

	"github.com/tansive/apiaccess/internal/common/apperrors"
)

// Sentinels. All of them chain to ErrAccess.
var (
	ErrAccess           apperrors.Error = apperrors.New("api access error")
	ErrPrecondition     apperrors.Error = ErrAccess.New("precondition failed").SetStatusCode(http.StatusPreconditionFailed)
	ErrNotImpersonating apperrors.Error = ErrAccess.New("not impersonating").SetStatusCode(http.StatusConflict)
	ErrUnauthorized     apperrors.Error = ErrAccess.New("unauthorized").SetStatusCode(http.StatusUnauthorized)
	ErrRemoteRejection  apperrors.Error = ErrAccess.New("request rejected by server")
	ErrGraphQL          apperrors.Error = ErrAccess.New("graphql error").SetStatusCode(http.StatusOK)
	ErrUpload           apperrors.Error = ErrAccess.New("upload failed")
	ErrTransport        apperrors.Error = ErrAccess.New("transport failure").SetStatusCode(http.StatusServiceUnavailable)
)

// PreconditionError reports an operation called in the wrong state, such as
// impersonating without being logged in.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }
func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// NotImpersonatingError is returned when exiting an impersonation that is
// not active.
type NotImpersonatingError struct{}

func (e *NotImpersonatingError) Error() string { return "not currently impersonating" }
func (e *NotImpersonatingError) Unwrap() error { return ErrNotImpersonating }

// UnauthorizedError is returned after a 401 response. The host has already
// been sent to LoginURL when the caller sees it.
type UnauthorizedError struct {
	LoginURL string
}

func (e *UnauthorizedError) Error() string { return "session expired, please log in again" }
func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// RemoteRejectionError is any non-success response other than 401 (and 422
// when inline validation was requested).
type RemoteRejectionError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *RemoteRejectionError) Error() string { return e.Message }
func (e *RemoteRejectionError) Unwrap() error { return ErrRemoteRejection }

// StatusCode returns the HTTP status of the rejected response.
func (e *RemoteRejectionError) StatusCode() int { return e.Status }

// GraphQLErrorLocation is a position in the GraphQL document.
type GraphQLErrorLocation struct {
	Line   int `json:"line" mapstructure:"line"`
	Column int `json:"column" mapstructure:"column"`
}

// GraphQLErrorItem is one entry of a GraphQL response's errors array.
type GraphQLErrorItem struct {
	Message    string                 `json:"message" mapstructure:"message"`
	Path       []any                  `json:"path,omitempty" mapstructure:"path"`
	Locations  []GraphQLErrorLocation `json:"locations,omitempty" mapstructure:"locations"`
	Extensions map[string]any         `json:"extensions,omitempty" mapstructure:"extensions"`
}

// GraphQLError is returned when a GraphQL response carries errors, even if
// the HTTP status was a success.
type GraphQLError struct {
	Errors []GraphQLErrorItem
}

func (e *GraphQLError) Error() string {
	if len(e.Errors) == 0 {
		return "graphql error"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Message
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Errors[0].Message, len(e.Errors)-1)
}
func (e *GraphQLError) Unwrap() error { return ErrGraphQL }

// UploadError is a multipart upload that was aborted, failed on the network
// or got a non-2xx response. Status is 0 unless a response was received.
type UploadError struct {
	Status  int
	Message string
	Cause   error
}

func (e *UploadError) Error() string {
	if e.Message != "" {
		return "upload failed: " + e.Message
	}
	if e.Cause != nil {
		return "upload failed: " + e.Cause.Error()
	}
	return "upload failed"
}
func (e *UploadError) Unwrap() []error { return nonNil(ErrUpload, e.Cause) }

// TransportError is a request that never produced a usable response: the
// network was unreachable or the body could not be read or decoded.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return "network request failed"
	}
	return "network request failed: " + e.Cause.Error()
}
func (e *TransportError) Unwrap() []error { return nonNil(ErrTransport, e.Cause) }

func nonNil(errs ...error) []error {
	out := errs[:0:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
