package request

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tansive/apiaccess/internal/common/logtrace"
	"github.com/tansive/apiaccess/internal/upload"
)

// UploadOptions tunes GraphQLWithUploads.
type UploadOptions struct {
	// OmitUploads sends the query without file parts, leaving the
	// placeholders in the variables. Used for live validation where
	// re-sending the files on every change would be wasteful.
	OmitUploads bool
	Signature   string
	OnProgress  httpclient.ProgressFunc
}

// GraphQLWithUploads sends a query whose variables may contain files. Files
// are replaced by placeholders and sent as multipart parts file0..fileN-1
// next to the JSON envelope in part "body". Without files, or with
// OmitUploads, it is a plain GraphQL call.
func (e *Executor) GraphQLWithUploads(ctx context.Context, query string, variables upload.Value, opts UploadOptions) (*Result, error) {
	var files []*upload.File
	if variables != nil {
		variables = upload.ReplaceFiles(variables, &files)
	}
	if len(files) == 0 || opts.OmitUploads {
		return e.GraphQL(ctx, query, variables, opts.Signature)
	}

	envelope, err := graphqlBody(query, variables, opts.Signature)
	if err != nil {
		return nil, e.fail(ctx, &accesserr.UploadError{Cause: err})
	}
	if err := e.session.Ready(ctx); err != nil {
		return nil, e.fail(ctx, err)
	}

	requestID := logtrace.NewRequestID()
	ctx = logtrace.WithRequestID(ctx, requestID)

	body := upload.NewMultipartBody(envelope, files)
	defer body.Close()

	header := e.authHeader(requestID)
	header.Set("Accept", "application/json")
	resp, err := e.http.UploadWithProgress(ctx, httpclient.UploadOptions{
		Method:      http.MethodPost,
		Path:        e.graphqlPath,
		Header:      header,
		ContentType: body.ContentType,
		Body:        body,
		Size:        body.Size,
	}, opts.OnProgress)
	if err != nil {
		return nil, e.uploadFailed(ctx, err)
	}
	log.Ctx(ctx).Debug().Int("files", len(files)).Int64("bytes", body.Size).Msg("upload completed")

	res := newResult(resp, requestID)
	if err := e.checkGraphQLErrors(ctx, res.Body); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Executor) uploadFailed(ctx context.Context, err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusUnauthorized {
			return e.unauthorized(ctx)
		}
		return e.fail(ctx, &accesserr.UploadError{
			Status:  httpErr.StatusCode,
			Message: httpErr.Message,
			Cause:   err,
		})
	}
	return e.fail(ctx, &accesserr.UploadError{Cause: err})
}
