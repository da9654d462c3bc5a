// Package api provides the client applications use to talk to the API: it
// keeps the bearer token of one session, handles impersonation through the
// identity service, issues REST and GraphQL requests (including file
// uploads) and batches usage analytics.
package api

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/tansive/apiaccess/internal/analytics"
	"github.com/tansive/apiaccess/internal/common/hostenv"
	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tansive/apiaccess/internal/config"
	"github.com/tansive/apiaccess/internal/identity"
	"github.com/tansive/apiaccess/internal/request"
	"github.com/tansive/apiaccess/internal/session"
	"github.com/tansive/apiaccess/internal/storage"
)

// Client is the entry point of the access layer. It is safe for concurrent
// use. Call Init once before (or while) issuing requests; requests wait for
// it.
type Client struct {
	session   *session.Session
	lifecycle *identity.Lifecycle
	cache     *identity.AuthCache
	executor  *request.Executor
	batcher   *analytics.Batcher
}

// ClientOption is a function type for configuring client behavior.
type ClientOption func(*clientConfig)

type clientConfig struct {
	transport         Transport
	identityTransport Transport
	store             storage.Store
	navigator         Navigator
	notifier          Notifier
	loginRedirect     LoginRedirectFunc
	graphqlPath       string
	analyticsPath     string
	analyticsWindow   time.Duration
	analyticsOff      bool
	clock             Clock
	cacheTTL          time.Duration
}

// WithTransport sets the transport for API and identity requests.
func WithTransport(t Transport) ClientOption {
	return func(c *clientConfig) { c.transport = t }
}

// WithIdentityTransport sets a separate transport for the identity service.
// Without it the identity service shares the API transport.
func WithIdentityTransport(t Transport) ClientOption {
	return func(c *clientConfig) { c.identityTransport = t }
}

// WithStore sets where the session tokens are persisted. The default keeps
// them in memory.
func WithStore(s storage.Store) ClientOption {
	return func(c *clientConfig) { c.store = s }
}

// WithNavigator sets the host navigator used for the login and logout
// redirects.
func WithNavigator(n Navigator) ClientOption {
	return func(c *clientConfig) { c.navigator = n }
}

// WithNotifier sets the host notifier that receives every failure message.
func WithNotifier(n Notifier) ClientOption {
	return func(c *clientConfig) { c.notifier = n }
}

// WithLoginRedirect sets how the login URL is computed after a 401.
func WithLoginRedirect(f LoginRedirectFunc) ClientOption {
	return func(c *clientConfig) { c.loginRedirect = f }
}

// WithGraphQLPath sets the GraphQL endpoint path.
func WithGraphQLPath(p string) ClientOption {
	return func(c *clientConfig) { c.graphqlPath = p }
}

// WithAnalyticsPath sets the analytics endpoint path.
func WithAnalyticsPath(p string) ClientOption {
	return func(c *clientConfig) { c.analyticsPath = p }
}

// WithAnalyticsWindow sets the analytics batching window.
func WithAnalyticsWindow(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.analyticsWindow = d }
}

// WithoutAnalytics drops recorded events instead of sending them.
func WithoutAnalytics() ClientOption {
	return func(c *clientConfig) { c.analyticsOff = true }
}

// WithClock sets the clock of the analytics batcher.
func WithClock(clock Clock) ClientOption {
	return func(c *clientConfig) { c.clock = clock }
}

// WithAuthCacheTTL expires cached impersonation checks after ttl.
func WithAuthCacheTTL(ttl time.Duration) ClientOption {
	return func(c *clientConfig) { c.cacheTTL = ttl }
}

// DefaultLoginRedirect returns a LoginRedirectFunc sending the user to
// loginURL with the current location in the "redirect" parameter.
func DefaultLoginRedirect(loginURL string) LoginRedirectFunc {
	return func(_ Slots, location string) string {
		u, err := url.Parse(loginURL)
		if err != nil {
			return loginURL
		}
		q := u.Query()
		if location != "" {
			q.Set("redirect", location)
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
}

// NewClient creates a client for the API at apiURL and the identity
// service at identityURL. Unless WithLoginRedirect says otherwise, a 401
// sends the user to the identity service's /login page.
func NewClient(apiURL, identityURL string, opts ...ClientOption) (*Client, error) {
	if apiURL == "" || identityURL == "" {
		return nil, errors.New("api and identity URLs are required")
	}
	cfg := clientConfig{
		notifier:      hostenv.LogNotifier{},
		graphqlPath:   request.DefaultGraphQLPath,
		analyticsPath: analytics.DefaultPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.navigator == nil {
		cfg.navigator = logNavigator{}
	}
	if cfg.loginRedirect == nil {
		cfg.loginRedirect = DefaultLoginRedirect(strings.TrimRight(identityURL, "/") + "/login")
	}
	if cfg.identityTransport == nil {
		cfg.identityTransport = cfg.transport
	}

	c := &Client{session: session.New(cfg.store)}

	idClient := identity.NewClient(identityURL, cfg.identityTransport)
	c.cache = identity.NewAuthCache(idClient, c.session, identity.WithTTL(cfg.cacheTTL))
	c.lifecycle = identity.NewLifecycle(c.session, idClient, c.cache, cfg.navigator, cfg.notifier)

	execOpts := []request.Option{
		request.WithNavigator(cfg.navigator),
		request.WithNotifier(cfg.notifier),
		request.WithGraphQLPath(cfg.graphqlPath),
		request.WithLoginRedirect(cfg.loginRedirect),
	}
	c.executor = request.NewExecutor(httpclient.NewClient(apiURL, cfg.transport), c.session, execOpts...)

	var sender analytics.Sender = analytics.NewExecutorSender(c.executor, cfg.analyticsPath)
	if cfg.analyticsOff {
		sender = analytics.SenderFunc(func(context.Context, []InteractionEvent) error { return nil })
	}
	batchOpts := []analytics.Option{analytics.WithWindow(cfg.analyticsWindow)}
	if cfg.clock != nil {
		batchOpts = append(batchOpts, analytics.WithClock(cfg.clock))
	}
	c.batcher = analytics.NewBatcher(sender, batchOpts...)
	return c, nil
}

// NewClientFromConfig creates a client from a loaded configuration. The
// session store is opened according to the storage section; options are
// applied after the configuration and override it.
func NewClientFromConfig(ctx context.Context, cfg *config.ConfigParam, opts ...ClientOption) (*Client, error) {
	store, err := openStore(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}

	base := []ClientOption{
		WithStore(store),
		WithGraphQLPath(cfg.API.GraphQLPath),
		WithAnalyticsPath(cfg.API.AnalyticsPath),
		WithAnalyticsWindow(cfg.Analytics.GetWindow()),
		WithAuthCacheTTL(cfg.Identity.GetCacheTTL()),
		WithTransport(httpclient.NewLoggingTransport(httpclient.NewTransport(httpclient.ClientOptions{
			DisableCertValidation: cfg.HTTP.InsecureSkipVerify,
			Timeout:               cfg.HTTP.GetTimeout(),
		}))),
	}
	if cfg.Identity.LoginURL != "" {
		base = append(base, WithLoginRedirect(DefaultLoginRedirect(cfg.Identity.LoginURL)))
	}
	if cfg.Analytics.Disabled {
		base = append(base, WithoutAnalytics())
	}

	c, err := NewClient(cfg.API.BaseURL, cfg.Identity.BaseURL, append(base, opts...)...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func openStore(ctx context.Context, sc *config.StorageConfig) (storage.Store, error) {
	storeType := storage.StoreType(sc.Driver)
	switch storeType {
	case storage.StoreTypeRedis:
		client, err := storage.ConnectRedis(ctx, sc.RedisURL, 3)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewStore(storeType,
			storage.WithRedisClient(client),
			storage.WithSessionID(sc.SessionID),
			storage.WithRedisTTL(sc.GetRedisTTL()))
		if err != nil {
			client.Close()
		}
		return store, err
	default:
		return storage.NewStore(storeType, storage.WithFilePath(sc.FilePath))
	}
}

// Init sets up the session. A non-empty token becomes the current token;
// otherwise the token persisted by an earlier run is used. Requests issued
// before Init wait for it.
func (c *Client) Init(ctx context.Context, token string) error {
	return c.lifecycle.Init(ctx, token)
}

// Ready blocks until Init has run.
func (c *Client) Ready(ctx context.Context) error {
	return c.session.Ready(ctx)
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	return c.session.Token()
}

// Principal returns the subject of the current token.
func (c *Client) Principal() string {
	return c.session.Principal()
}

// Expiry returns when the current token expires, or the zero time.
func (c *Client) Expiry() time.Time {
	return c.session.Expiry()
}

// Snapshot returns the token slots of the session.
func (c *Client) Snapshot() Slots {
	return c.session.Snapshot()
}

// Logout ends the session and navigates to the identity service's logout
// page. Without a token it does nothing.
func (c *Client) Logout(ctx context.Context) error {
	return c.lifecycle.Logout(ctx)
}

// Impersonate switches the session to act as netid.
func (c *Client) Impersonate(ctx context.Context, netid string) error {
	return c.lifecycle.Impersonate(ctx, netid)
}

// ExitImpersonation switches back to the principal.
func (c *Client) ExitImpersonation(ctx context.Context) error {
	return c.lifecycle.ExitImpersonation(ctx)
}

// ImpersonationStatus reports whom the current token acts for.
func (c *Client) ImpersonationStatus() ImpersonationStatus {
	return c.lifecycle.Status()
}

// MayImpersonateAnyone reports whether the principal may impersonate at all.
// Failures answer false.
func (c *Client) MayImpersonateAnyone(ctx context.Context) bool {
	return c.cache.MayImpersonateAnyone(ctx)
}

// MayImpersonate reports whether the principal may impersonate netid.
// Failures answer false.
func (c *Client) MayImpersonate(ctx context.Context, netid string) bool {
	return c.cache.MayImpersonate(ctx, netid)
}

// Do issues the request described by d.
func (c *Client) Do(ctx context.Context, d Descriptor) (*Result, error) {
	return c.executor.Do(ctx, d)
}

// Get issues a GET request. A non-nil body is sent as JSON like for the
// other methods.
func (c *Client) Get(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.Get(ctx, path, body, q)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.Post(ctx, path, body, q)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.Put(ctx, path, body, q)
}

// Patch issues a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.Patch(ctx, path, body, q)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.Delete(ctx, path, body, q)
}

// ValidatedPost is Post returning a 422 as a Result.
func (c *Client) ValidatedPost(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.ValidatedPost(ctx, path, body, q)
}

// ValidatedPut is Put returning a 422 as a Result.
func (c *Client) ValidatedPut(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.ValidatedPut(ctx, path, body, q)
}

// ValidatedPatch is Patch returning a 422 as a Result.
func (c *Client) ValidatedPatch(ctx context.Context, path string, body any, q Query) (*Result, error) {
	return c.executor.ValidatedPatch(ctx, path, body, q)
}

// GraphQL posts a query. Errors in the response fail the call even with a
// 200 status.
func (c *Client) GraphQL(ctx context.Context, query string, variables any, signature string) (*Result, error) {
	return c.executor.GraphQL(ctx, query, variables, signature)
}

// GraphQLWithUploads posts a query whose variables may hold files.
func (c *Client) GraphQLWithUploads(ctx context.Context, query string, variables Value, opts UploadOptions) (*Result, error) {
	return c.executor.GraphQLWithUploads(ctx, query, variables, opts)
}

// Record queues an analytics event.
func (c *Client) Record(ev InteractionEvent) {
	c.batcher.Record(ev)
}

// FlushAnalytics sends queued events now.
func (c *Client) FlushAnalytics(ctx context.Context) error {
	return c.batcher.Flush(ctx)
}

// OnVisibilityChange tells the client the host was hidden or shown. Hiding
// flushes analytics.
func (c *Client) OnVisibilityChange(hidden bool) {
	c.batcher.OnVisibilityChange(hidden)
}

// Close flushes analytics and releases the session store.
func (c *Client) Close(ctx context.Context) error {
	err := c.batcher.Close(ctx)
	if cerr := c.session.Close(); err == nil {
		err = cerr
	}
	return err
}

// logNavigator is used when the host supplies no navigator.
type logNavigator struct{}

func (logNavigator) Redirect(url string) {
	hostenv.LogNotifier{}.Notify("navigate to " + url)
}

func (logNavigator) Location() string { return "" }
