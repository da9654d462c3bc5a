// Package identity talks to the identity delegation service: it checks and
// obtains impersonation grants, builds the logout URL, and drives the
// session through login, impersonation and logout.
package identity

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service endpoints relative to the identity base URL.
const (
	pathMayImpersonate = "/mayImpersonate"
	pathImpersonate    = "/impersonate"
	pathLogout         = "/logout"
)

// Client is a thin client for the identity service.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a client for the identity service at baseURL.
func NewClient(baseURL string, transport httpclient.Transport) *Client {
	return &Client{http: httpclient.NewClient(baseURL, transport)}
}

type netidRequest struct {
	NetID string `json:"netid,omitempty"`
}

func (c *Client) post(ctx context.Context, path, token, netid string) (*httpclient.Response, error) {
	body, err := json.Marshal(netidRequest{NetID: netid})
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")
	return c.http.DoRequest(ctx, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path,
		Header: header,
		Body:   body,
	})
}

// MayImpersonate asks whether the holder of token may impersonate netid, or
// anyone at all when netid is empty.
func (c *Client) MayImpersonate(ctx context.Context, token, netid string) (bool, error) {
	resp, err := c.post(ctx, pathMayImpersonate, token, netid)
	if err != nil {
		return false, classify(err)
	}
	authorized := gjson.GetBytes(resp.Body, "authorized")
	if !authorized.Exists() {
		return false, &accesserr.TransportError{Cause: errors.New("response has no authorized field")}
	}
	return authorized.Bool(), nil
}

// Impersonate obtains a delegated token for netid, authenticated with the
// principal's token.
func (c *Client) Impersonate(ctx context.Context, token, netid string) (string, error) {
	resp, err := c.post(ctx, pathImpersonate, token, netid)
	if err != nil {
		return "", classify(err)
	}
	delegated := gjson.GetBytes(resp.Body, "token").String()
	if delegated == "" {
		return "", &accesserr.TransportError{Cause: errors.New("response has no token")}
	}
	log.Ctx(ctx).Debug().Str("netid", netid).Msg("obtained delegated token")
	return delegated, nil
}

// LogoutURL returns the URL that ends the identity service session of token.
func (c *Client) LogoutURL(token string) string {
	u, err := c.http.URL(pathLogout, url.Values{"unifiedJwt": {token}}.Encode())
	if err != nil {
		return c.http.BaseURL() + pathLogout
	}
	return u
}

func classify(err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return &accesserr.RemoteRejectionError{
			Status:  httpErr.StatusCode,
			Message: httpErr.Message,
			Body:    httpErr.Body,
		}
	}
	return &accesserr.TransportError{Cause: err}
}
