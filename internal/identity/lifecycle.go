package identity

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tansive/apiaccess/internal/common/hostenv"
	"github.com/tansive/apiaccess/internal/session"
)

// Lifecycle moves a session between logged out, authenticated and
// impersonating. It is the only writer of the original token slot.
// Transitions are serialized; status reads are not.
type Lifecycle struct {
	mu        sync.Mutex
	session   *session.Session
	client    *Client
	cache     *AuthCache
	navigator hostenv.Navigator
	notifier  hostenv.Notifier
}

// NewLifecycle wires a lifecycle. cache may be nil.
func NewLifecycle(s *session.Session, client *Client, cache *AuthCache, navigator hostenv.Navigator, notifier hostenv.Notifier) *Lifecycle {
	if notifier == nil {
		notifier = hostenv.LogNotifier{}
	}
	return &Lifecycle{
		session:   s,
		client:    client,
		cache:     cache,
		navigator: navigator,
		notifier:  notifier,
	}
}

// Init establishes the session token and releases waiting requests.
func (l *Lifecycle) Init(ctx context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Init(ctx, token)
}

// Logout clears the session and navigates to the identity service's logout
// URL. Without a token it does nothing. While impersonating, the
// principal's own token is the one logged out.
func (l *Lifecycle) Logout(ctx context.Context) error {
	if err := l.session.Ready(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	slots := l.session.Snapshot()
	if slots.Token == "" {
		return nil
	}
	token := slots.Token
	if slots.IsImpersonating() {
		token = slots.OriginalToken
	}
	if err := l.session.Clear(ctx); err != nil {
		return err
	}
	if l.cache != nil {
		l.cache.Reset()
	}
	log.Ctx(ctx).Info().Bool("was_impersonating", slots.IsImpersonating()).Msg("logged out")
	l.navigator.Redirect(l.client.LogoutURL(token))
	return nil
}

// Impersonate replaces the current token with one delegated for netid.
// Nested calls chain to the root principal: the original token is kept
// and authenticates the new delegation. On any failure the session is left
// as it was.
func (l *Lifecycle) Impersonate(ctx context.Context, netid string) error {
	if err := l.session.Ready(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.session.Snapshot()
	if prev.Token == "" {
		return l.fail(&accesserr.PreconditionError{Reason: "cannot impersonate without being logged in"})
	}
	principal := prev.OriginalToken
	if principal == "" {
		principal = prev.Token
	}

	delegated, err := l.client.Impersonate(ctx, principal, netid)
	if err != nil {
		return l.fail(err)
	}
	if err := l.session.Replace(ctx, session.Slots{Token: delegated, OriginalToken: principal}); err != nil {
		return l.fail(err)
	}
	log.Ctx(ctx).Info().Str("netid", netid).Bool("nested", prev.IsImpersonating()).Msg("impersonating")
	return nil
}

// ExitImpersonation restores the principal's token.
func (l *Lifecycle) ExitImpersonation(ctx context.Context) error {
	if err := l.session.Ready(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	slots := l.session.Snapshot()
	if !slots.IsImpersonating() {
		return l.fail(&accesserr.NotImpersonatingError{})
	}
	if err := l.session.Replace(ctx, session.Slots{Token: slots.OriginalToken}); err != nil {
		return l.fail(err)
	}
	log.Ctx(ctx).Info().Msg("impersonation ended")
	return nil
}

// Status decodes the impersonation state from the current token.
func (l *Lifecycle) Status() session.ImpersonationStatus {
	return l.session.ImpersonationStatus()
}

func (l *Lifecycle) fail(err error) error {
	l.notifier.Notify(err.Error())
	return err
}
