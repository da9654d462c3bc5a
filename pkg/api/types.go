package api

import (
	"io"

	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tansive/apiaccess/internal/analytics"
	"github.com/tansive/apiaccess/internal/common/hostenv"
	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tansive/apiaccess/internal/request"
	"github.com/tansive/apiaccess/internal/session"
	"github.com/tansive/apiaccess/internal/upload"
)

// Request and response types.
type (
	Result        = request.Result
	Query         = request.Query
	Descriptor    = request.Descriptor
	UploadOptions = request.UploadOptions
	Progress      = httpclient.Progress
	ProgressFunc  = httpclient.ProgressFunc
)

// Session types.
type (
	Slots               = session.Slots
	ImpersonationStatus = session.ImpersonationStatus
	LoginRedirectFunc   = request.LoginRedirectFunc
)

// Host capabilities.
type (
	Navigator = hostenv.Navigator
	Notifier  = hostenv.Notifier
	Transport = httpclient.Transport
)

// Analytics types.
type (
	InteractionEvent = analytics.InteractionEvent
	Clock            = analytics.Clock
)

// Upload value model.
type (
	Value       = upload.Value
	Object      = upload.Object
	Field       = upload.Field
	Array       = upload.Array
	Scalar      = upload.Scalar
	File        = upload.File
	Placeholder = upload.Placeholder
)

// Errors. Match categories with errors.Is against the Err* sentinels and
// extract details with errors.As against the *Error types.
type (
	PreconditionError     = accesserr.PreconditionError
	NotImpersonatingError = accesserr.NotImpersonatingError
	UnauthorizedError     = accesserr.UnauthorizedError
	RemoteRejectionError  = accesserr.RemoteRejectionError
	GraphQLError          = accesserr.GraphQLError
	GraphQLErrorItem      = accesserr.GraphQLErrorItem
	UploadError           = accesserr.UploadError
	TransportError        = accesserr.TransportError
)

var (
	ErrAccess           = accesserr.ErrAccess
	ErrPrecondition     = accesserr.ErrPrecondition
	ErrNotImpersonating = accesserr.ErrNotImpersonating
	ErrUnauthorized     = accesserr.ErrUnauthorized
	ErrRemoteRejection  = accesserr.ErrRemoteRejection
	ErrGraphQL          = accesserr.ErrGraphQL
	ErrUpload           = accesserr.ErrUpload
	ErrTransport        = accesserr.ErrTransport
)

// IndeterminateRatio is reported as Progress.Ratio when the upload size is
// unknown.
const IndeterminateRatio = httpclient.IndeterminateRatio

// NotImpersonating is the status of a plain token.
var NotImpersonating = session.NotImpersonating

// RawQuery returns a Query sent verbatim.
func RawQuery(s string) Query { return request.RawQuery(s) }

// Params returns a structured Query.
func Params(p map[string]any) Query { return request.Params(p) }

// NewFile returns an in-memory upload file.
func NewFile(name string, content []byte) *File { return upload.NewFile(name, content) }

// OpenFile returns an upload file backed by path.
func OpenFile(path string) (*File, error) { return upload.OpenFile(path) }

// NewStreamFile returns an upload file read once from r. Its size is
// unknown, so upload progress is indeterminate.
func NewStreamFile(name string, r io.Reader) (*File, error) { return upload.NewStreamFile(name, r) }

// Decode parses JSON variables keeping key order and number literals.
func Decode(data []byte) (Value, error) { return upload.Decode(data) }

// FromAny converts decoded JSON, possibly holding *File values, into a
// Value.
func FromAny(v any) Value { return upload.FromAny(v) }
