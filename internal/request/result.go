package request

import (
	"net/http"

	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tidwall/gjson"
)

// Result is a response the caller should handle: a success, or a 422 when
// inline validation was requested.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

func newResult(resp *httpclient.Response, requestID string) *Result {
	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		RequestID:  requestID,
	}
}

// IsJSON reports whether the response declared a JSON content type.
func (r *Result) IsJSON() bool {
	return httpclient.IsJSONContentType(r.Header.Get("Content-Type"))
}

// IsValidationFailure reports whether the server rejected the input with
// field errors (422).
func (r *Result) IsValidationFailure() bool {
	return r.StatusCode == http.StatusUnprocessableEntity
}

// Data returns the decoded JSON body when the response is JSON, and the body
// text otherwise.
func (r *Result) Data() (any, error) {
	if !r.IsJSON() {
		return string(r.Body), nil
	}
	if len(r.Body) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode unmarshals a JSON body into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get returns the value at a gjson path of a JSON body.
func (r *Result) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Text returns the body as a string.
func (r *Result) Text() string {
	return string(r.Body)
}
