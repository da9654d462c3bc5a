// Package apperrors provides the chained error type used across the access layer.
// Errors carry an optional HTTP status code and an optional details payload
// (for example a remote error body or a list of GraphQL errors), and support
// errors.Is against every error in the chain.
package apperrors

// Error defines the interface for application errors. All methods that
// derive a new error return Error so calls can be chained.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // new error using the current one as template
	Msg(msg string) Error                  // new message, wraps the original
	MsgErr(msg string, err ...error) Error // new message, wraps the original and extra errors
	Err(err ...error) Error                // attaches additional errors
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int                       // returns the HTTP status code
	WithDetails(any) Error                 // attaches a details payload
	Details() any                          // returns the details payload, if any
	ErrorAll() string                      // message including wrapped errors
	UnwrapAll() []error                    // all wrapped errors
}
