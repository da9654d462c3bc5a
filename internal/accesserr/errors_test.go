package accesserr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/apiaccess/internal/common/apperrors"
)

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"precondition", &PreconditionError{Reason: "no token"}, ErrPrecondition, "no token"},
		{"not impersonating", &NotImpersonatingError{}, ErrNotImpersonating, "not currently impersonating"},
		{"unauthorized", &UnauthorizedError{LoginURL: "https://auth/login"}, ErrUnauthorized, "session expired, please log in again"},
		{"remote", &RemoteRejectionError{Status: 500, Message: "boom"}, ErrRemoteRejection, "boom"},
		{"graphql one", &GraphQLError{Errors: []GraphQLErrorItem{{Message: "bad field"}}}, ErrGraphQL, "bad field"},
		{"graphql many", &GraphQLError{Errors: []GraphQLErrorItem{{Message: "a"}, {Message: "b"}, {Message: "c"}}}, ErrGraphQL, "a (and 2 more errors)"},
		{"upload", &UploadError{Status: 413, Message: "too large"}, ErrUpload, "upload failed: too large"},
		{"transport", &TransportError{Cause: errors.New("dial tcp")}, ErrTransport, "network request failed: dial tcp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("calling api: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.ErrorIs(t, wrapped, ErrAccess)
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

func TestCausesAreReachable(t *testing.T) {
	err := &UploadError{Cause: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, "upload failed: context canceled", err.Error())

	var te *TransportError
	require.ErrorAs(t, fmt.Errorf("x: %w", &TransportError{}), &te)
	assert.Equal(t, "network request failed", te.Error())
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, apperrors.StatusCodeOf(&UnauthorizedError{}))
	assert.Equal(t, http.StatusPreconditionFailed, apperrors.StatusCodeOf(&PreconditionError{}))
	assert.Equal(t, 502, (&RemoteRejectionError{Status: 502}).StatusCode())
}
