package identity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tansive/apiaccess/internal/common/hostenv"
	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tansive/apiaccess/internal/common/tokentest"
	"github.com/tansive/apiaccess/internal/session"
	"github.com/tidwall/gjson"
)

const identityURL = "http://identity.local"

// fakeIdentity is an in-process identity service. Principals listed in
// admins may impersonate anyone except other admins.
type fakeIdentity struct {
	t        *testing.T
	admins   map[string]bool
	checks   atomic.Int32
	grants   atomic.Int32
	status   int // forced status for every request when non-zero
	hold     chan struct{}
	mu       sync.Mutex
	bearers  []string
	received []string
}

func newFakeIdentity(t *testing.T, admins ...string) *fakeIdentity {
	f := &fakeIdentity{t: t, admins: map[string]bool{}}
	for _, a := range admins {
		f.admins[a] = true
	}
	return f
}

func (f *fakeIdentity) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/mayImpersonate", func(w http.ResponseWriter, r *http.Request) {
		f.checks.Add(1)
		if f.hold != nil {
			<-f.hold
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		sub, netid := f.read(r)
		allowed := f.admins[sub] && !f.admins[netid]
		w.Header().Set("Content-Type", "application/json")
		if allowed {
			io.WriteString(w, `{"authorized":true}`)
		} else {
			io.WriteString(w, `{"authorized":false}`)
		}
	})
	r.Post("/impersonate", func(w http.ResponseWriter, r *http.Request) {
		f.grants.Add(1)
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		sub, netid := f.read(r)
		w.Header().Set("Content-Type", "application/json")
		if !f.admins[sub] || f.admins[netid] {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"message":"`+sub+` may not impersonate `+netid+`"}`)
			return
		}
		tok := tokentest.Mint(f.t, netid, sub, time.Now().Add(time.Hour))
		io.WriteString(w, `{"token":"`+tok+`"}`)
	})
	return r
}

// read returns the bearer's subject and the requested netid.
func (f *fakeIdentity) read(r *http.Request) (string, string) {
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	body, _ := io.ReadAll(r.Body)
	netid := gjson.GetBytes(body, "netid").String()

	claims := jwt.MapClaims{}
	sub := ""
	if _, _, err := jwt.NewParser().ParseUnverified(bearer, claims); err == nil {
		sub, _ = claims.GetSubject()
	}
	f.mu.Lock()
	f.bearers = append(f.bearers, bearer)
	f.received = append(f.received, netid)
	f.mu.Unlock()
	return sub, netid
}

func (f *fakeIdentity) client() *Client {
	return NewClient(identityURL, &httpclient.HandlerTransport{Handler: f.router()})
}

type staticToken string

func (s staticToken) Token() string { return string(s) }

type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient(t *testing.T) {
	ctx := context.Background()
	f := newFakeIdentity(t, "alice")
	c := f.client()
	alice := tokentest.Mint(t, "alice", "", time.Time{})

	ok, err := c.MayImpersonate(ctx, alice, "")
	require.NoError(t, err)
	assert.True(t, ok)

	tok, err := c.Impersonate(ctx, alice, "bob")
	require.NoError(t, err)
	assert.Equal(t, session.ImpersonationStatus{Impersonating: true, ImpersonatedUser: "bob", ImpersonatedBy: "alice"}, session.StatusOf(tok))

	_, err = c.Impersonate(ctx, tokentest.Mint(t, "bob", "", time.Time{}), "carol")
	var rejected *accesserr.RemoteRejectionError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusForbidden, rejected.Status)
	assert.Equal(t, "bob may not impersonate carol", rejected.Message)
	assert.Contains(t, string(rejected.Body), "may not impersonate")

	assert.Equal(t, identityURL+"/logout?unifiedJwt="+alice, c.LogoutURL(alice))
}

func TestClientTransportFailure(t *testing.T) {
	c := NewClient(identityURL, transportFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))
	_, err := c.Impersonate(context.Background(), "tok", "bob")
	assert.ErrorIs(t, err, accesserr.ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAuthCache(t *testing.T) {
	ctx := context.Background()
	alice := staticToken(tokentest.Mint(t, "alice", "", time.Time{}))

	t.Run("answers and memoizes", func(t *testing.T) {
		f := newFakeIdentity(t, "alice", "root")
		cache := NewAuthCache(f.client(), alice)

		assert.True(t, cache.MayImpersonateAnyone(ctx))
		assert.True(t, cache.MayImpersonate(ctx, "bob"))
		assert.False(t, cache.MayImpersonate(ctx, "root"))
		assert.True(t, cache.MayImpersonate(ctx, "bob"))
		assert.True(t, cache.MayImpersonateAnyone(ctx))
		assert.EqualValues(t, 3, f.checks.Load())
	})

	t.Run("no token short circuits", func(t *testing.T) {
		f := newFakeIdentity(t, "alice")
		cache := NewAuthCache(f.client(), staticToken(""))
		assert.False(t, cache.MayImpersonateAnyone(ctx))
		assert.False(t, cache.MayImpersonate(ctx, "bob"))
		assert.EqualValues(t, 0, f.checks.Load())
	})

	t.Run("concurrent checks share one request", func(t *testing.T) {
		f := newFakeIdentity(t, "alice")
		f.hold = make(chan struct{})
		cache := NewAuthCache(f.client(), alice)

		var wg sync.WaitGroup
		results := make([]bool, 2)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = cache.MayImpersonate(ctx, "bob")
			}(i)
		}
		require.Eventually(t, func() bool { return f.checks.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(f.hold)
		wg.Wait()

		assert.Equal(t, []bool{true, true}, results)
		assert.EqualValues(t, 1, f.checks.Load())
	})

	t.Run("fails closed and retries later", func(t *testing.T) {
		f := newFakeIdentity(t, "alice")
		f.status = http.StatusInternalServerError
		cache := NewAuthCache(f.client(), alice)

		assert.False(t, cache.MayImpersonate(ctx, "bob"))
		assert.False(t, cache.MayImpersonate(ctx, "bob"))
		assert.EqualValues(t, 2, f.checks.Load())
	})

	t.Run("transport failure is false", func(t *testing.T) {
		c := NewClient(identityURL, transportFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("offline")
		}))
		cache := NewAuthCache(c, alice)
		assert.False(t, cache.MayImpersonateAnyone(ctx))
	})

	t.Run("cancelled caller gets false", func(t *testing.T) {
		f := newFakeIdentity(t, "alice")
		f.hold = make(chan struct{})
		defer close(f.hold)
		cache := NewAuthCache(f.client(), alice)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.False(t, cache.MayImpersonate(cctx, "bob"))
	})

	t.Run("ttl expiry", func(t *testing.T) {
		f := newFakeIdentity(t, "alice")
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		cache := NewAuthCache(f.client(), alice,
			WithTTL(time.Minute),
			WithNow(func() time.Time { return now }))

		assert.True(t, cache.MayImpersonateAnyone(ctx))
		now = now.Add(30 * time.Second)
		assert.True(t, cache.MayImpersonateAnyone(ctx))
		assert.EqualValues(t, 1, f.checks.Load())

		now = now.Add(time.Minute)
		assert.True(t, cache.MayImpersonateAnyone(ctx))
		assert.EqualValues(t, 2, f.checks.Load())

		cache.Reset()
		assert.True(t, cache.MayImpersonateAnyone(ctx))
		assert.EqualValues(t, 3, f.checks.Load())
	})

	t.Run("keys are per token", func(t *testing.T) {
		assert.NotEqual(t, cacheKey("a", "bob"), cacheKey("b", "bob"))
		assert.NotEqual(t, cacheKey("a", ""), cacheKey("a", "bob"))
		assert.NotContains(t, cacheKey("secret-token", "bob"), "secret-token")
	})
}

type lifecycleFixture struct {
	identity  *fakeIdentity
	session   *session.Session
	host      *hostenv.Recorder
	lifecycle *Lifecycle
}

func newLifecycleFixture(t *testing.T, token string) *lifecycleFixture {
	t.Helper()
	f := newFakeIdentity(t, "alice")
	s := session.New(nil)
	host := hostenv.NewRecorder("/home")
	client := f.client()
	lc := NewLifecycle(s, client, NewAuthCache(client, s), host, host)
	require.NoError(t, lc.Init(context.Background(), token))
	return &lifecycleFixture{identity: f, session: s, host: host, lifecycle: lc}
}

func TestImpersonate(t *testing.T) {
	ctx := context.Background()
	alice := tokentest.Mint(t, "alice", "", time.Time{})

	t.Run("requires a token", func(t *testing.T) {
		fx := newLifecycleFixture(t, "")
		err := fx.lifecycle.Impersonate(ctx, "bob")
		assert.ErrorIs(t, err, accesserr.ErrPrecondition)
		assert.EqualValues(t, 0, fx.identity.grants.Load())
		assert.Len(t, fx.host.Messages(), 1)
	})

	t.Run("delegates and exits", func(t *testing.T) {
		fx := newLifecycleFixture(t, alice)
		require.NoError(t, fx.lifecycle.Impersonate(ctx, "bob"))

		assert.Equal(t, session.ImpersonationStatus{Impersonating: true, ImpersonatedUser: "bob", ImpersonatedBy: "alice"}, fx.lifecycle.Status())
		assert.Equal(t, alice, fx.session.Snapshot().OriginalToken)
		assert.False(t, fx.session.Expiry().IsZero())

		require.NoError(t, fx.lifecycle.ExitImpersonation(ctx))
		assert.Equal(t, session.Slots{Token: alice}, fx.session.Snapshot())
		assert.Equal(t, session.NotImpersonating, fx.lifecycle.Status())
	})

	t.Run("nested impersonation keeps the principal", func(t *testing.T) {
		fx := newLifecycleFixture(t, alice)
		require.NoError(t, fx.lifecycle.Impersonate(ctx, "bob"))
		require.NoError(t, fx.lifecycle.Impersonate(ctx, "carol"))

		assert.Equal(t, alice, fx.session.Snapshot().OriginalToken)
		assert.Equal(t, "carol", fx.lifecycle.Status().ImpersonatedUser)
		assert.Equal(t, "alice", fx.lifecycle.Status().ImpersonatedBy)
		assert.Equal(t, []string{alice, alice}, fx.identity.bearers)
	})

	t.Run("rejection leaves the session alone", func(t *testing.T) {
		fx := newLifecycleFixture(t, alice)
		err := fx.lifecycle.Impersonate(ctx, "alice")
		var rejected *accesserr.RemoteRejectionError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, http.StatusForbidden, rejected.Status)
		assert.Equal(t, session.Slots{Token: alice}, fx.session.Snapshot())
		assert.Equal(t, []string{"alice may not impersonate alice"}, fx.host.Messages())
	})

	t.Run("exit when not impersonating", func(t *testing.T) {
		fx := newLifecycleFixture(t, alice)
		err := fx.lifecycle.ExitImpersonation(ctx)
		assert.ErrorIs(t, err, accesserr.ErrNotImpersonating)
		var nie *accesserr.NotImpersonatingError
		assert.ErrorAs(t, err, &nie)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	alice := tokentest.Mint(t, "alice", "", time.Time{})

	t.Run("nothing to do without a token", func(t *testing.T) {
		fx := newLifecycleFixture(t, "")
		require.NoError(t, fx.lifecycle.Logout(ctx))
		assert.Empty(t, fx.host.Redirects())
		assert.EqualValues(t, 0, fx.identity.checks.Load()+fx.identity.grants.Load())
	})

	t.Run("plain session", func(t *testing.T) {
		fx := newLifecycleFixture(t, alice)
		require.NoError(t, fx.lifecycle.Logout(ctx))
		assert.Equal(t, []string{identityURL + "/logout?unifiedJwt=" + alice}, fx.host.Redirects())
		assert.Equal(t, session.Slots{}, fx.session.Snapshot())
	})

	t.Run("impersonating logs out the principal", func(t *testing.T) {
		fx := newLifecycleFixture(t, alice)
		require.NoError(t, fx.lifecycle.Impersonate(ctx, "bob"))
		require.NoError(t, fx.lifecycle.Logout(ctx))
		assert.Equal(t, []string{identityURL + "/logout?unifiedJwt=" + alice}, fx.host.Redirects())
		assert.Equal(t, session.Slots{}, fx.session.Snapshot())
	})

	t.Run("waits for init", func(t *testing.T) {
		s := session.New(nil)
		host := hostenv.NewRecorder("/")
		lc := NewLifecycle(s, newFakeIdentity(t).client(), nil, host, host)
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, lc.Logout(cctx), context.DeadlineExceeded)
	})
}
