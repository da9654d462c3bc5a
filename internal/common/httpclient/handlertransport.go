package httpclient

import (
	"net/http"
	"net/http/httptest"
)

// HandlerTransport serves requests with an in-process http.Handler instead
// of the network. Responses are captured with httptest.NewRecorder.
type HandlerTransport struct {
	Handler http.Handler
}

// Do implements Transport.
func (t *HandlerTransport) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if req.Body != nil {
		defer req.Body.Close()
	}
	rr := httptest.NewRecorder()
	t.Handler.ServeHTTP(rr, req)
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	return rr.Result(), nil
}

var _ Transport = &HandlerTransport{}
var _ Transport = &http.Client{}
