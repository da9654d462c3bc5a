// Package session holds the bearer token state of one host session: the
// current token, the principal's original token while impersonating, and
// the readiness latch every request waits on before reading the token.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/apiaccess/internal/common/apperrors"
	"github.com/tansive/apiaccess/internal/storage"
)

var (
	ErrSession      apperrors.Error = apperrors.New("session error")
	ErrInvalidState apperrors.Error = ErrSession.New("original token set without a current token")
	ErrPersist      apperrors.Error = ErrSession.New("unable to persist session")
)

// Slots is a point-in-time copy of the session's token slots.
type Slots struct {
	Token         string
	OriginalToken string
}

// IsImpersonating reports whether the principal's token is parked in the
// original slot.
func (s Slots) IsImpersonating() bool {
	return s.OriginalToken != ""
}

// Valid reports whether the slots satisfy the session invariant.
func (s Slots) Valid() bool {
	return s.OriginalToken == "" || s.Token != ""
}

// Session is safe for concurrent use.
type Session struct {
	mu    sync.RWMutex
	slots Slots
	store storage.Store
	ready *Latch
}

// New returns a session backed by store. A nil store keeps the session in
// memory only.
func New(store storage.Store) *Session {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &Session{
		store: store,
		ready: NewLatch(),
	}
}

// Init establishes the current token and opens the readiness latch. A
// non-empty supplied token becomes current and is persisted; otherwise the
// token is loaded from storage unless one is already in memory. A persisted
// original token is restored only when it belongs to the same session: a
// supplied token different from the stored one starts a fresh login and
// discards it.
//
// A supplied token is kept in memory even when storage cannot be read or
// written, so a damaged store never blocks a login; the storage error is
// still returned. The latch opens in every case.
func (s *Session) Init(ctx context.Context, supplied string) error {
	defer s.ready.Open()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, original, err := s.loadLocked(ctx)
	if err != nil {
		if supplied == "" {
			return err
		}
		log.Ctx(ctx).Warn().Err(err).Msg("ignoring unreadable session state for supplied token")
		return s.forceLocked(ctx, Slots{Token: supplied})
	}

	next := s.slots
	switch {
	case supplied != "":
		next.Token = supplied
		if supplied != stored {
			next.OriginalToken = ""
		} else if next.OriginalToken == "" {
			next.OriginalToken = original
		}
	case next.Token == "":
		next.Token = stored
		next.OriginalToken = original
	}
	if !next.Valid() {
		log.Ctx(ctx).Warn().Msg("discarding persisted original token without a current token")
		next.OriginalToken = ""
	}
	if supplied != "" {
		return s.forceLocked(ctx, next)
	}
	return s.commitLocked(ctx, next)
}

func (s *Session) loadLocked(ctx context.Context) (token, original string, err error) {
	token, _, err = s.store.Get(ctx, storage.KeyToken)
	if err != nil {
		return "", "", ErrPersist.MsgErr("unable to load session token", err)
	}
	original, _, err = s.store.Get(ctx, storage.KeyOriginalToken)
	if err != nil {
		return "", "", ErrPersist.MsgErr("unable to load original token", err)
	}
	return token, original, nil
}

// forceLocked commits next and keeps it in memory even if persisting fails.
func (s *Session) forceLocked(ctx context.Context, next Slots) error {
	err := s.commitLocked(ctx, next)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("session token kept in memory only")
		s.slots = next
	}
	return err
}

// Ready blocks until Init has run or ctx is done.
func (s *Session) Ready(ctx context.Context) error {
	return s.ready.Wait(ctx)
}

// State reports the readiness latch state.
func (s *Session) State() LatchState {
	return s.ready.State()
}

// Token returns the current token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots.Token
}

// Snapshot returns a copy of both slots.
func (s *Session) Snapshot() Slots {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots
}

// Replace sets both slots and persists them. It fails without touching
// memory if next violates the session invariant or storage rejects it.
func (s *Session) Replace(ctx context.Context, next Slots) error {
	if !next.Valid() {
		return ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, next)
}

// Clear removes both slots from memory and storage.
func (s *Session) Clear(ctx context.Context) error {
	return s.Replace(ctx, Slots{})
}

func (s *Session) commitLocked(ctx context.Context, next Slots) error {
	if err := s.persist(ctx, storage.KeyToken, s.slots.Token, next.Token); err != nil {
		return err
	}
	if err := s.persist(ctx, storage.KeyOriginalToken, s.slots.OriginalToken, next.OriginalToken); err != nil {
		return err
	}
	s.slots = next
	return nil
}

func (s *Session) persist(ctx context.Context, key, prev, next string) error {
	var err error
	if next == "" {
		err = s.store.Remove(ctx, key)
	} else if next != prev {
		err = s.store.Set(ctx, key, next)
	}
	if err != nil {
		return ErrPersist.Err(err)
	}
	return nil
}

// ImpersonationStatus decodes the current token.
func (s *Session) ImpersonationStatus() ImpersonationStatus {
	return StatusOf(s.Token())
}

// Principal returns the subject of the current token, or "" if there is no
// decodable token.
func (s *Session) Principal() string {
	tc, _ := parseClaims(s.Token())
	return tc.Subject
}

// Expiry returns the expiry of the current token. The zero time means the
// token has no exp claim or cannot be decoded.
func (s *Session) Expiry() time.Time {
	tc, _ := parseClaims(s.Token())
	return tc.ExpiresAt
}

// Close closes the underlying store.
func (s *Session) Close() error {
	return s.store.Close()
}
