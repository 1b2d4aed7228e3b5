// Package auth tracks per-identity authorization state and hands out
// non-expired access credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/crypto"
	"github.com/jun/drivechat/internal/lease"
	"github.com/jun/drivechat/internal/model"
	"github.com/jun/drivechat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSkew      = 2 * time.Minute
	DefaultTimeout   = 15 * time.Second
	DefaultStateTTL  = 15 * time.Minute
	DefaultLeaseWait = 5 * time.Second
)

// Options tune a Manager. Zero values take the defaults.
type Options struct {
	Skew      time.Duration
	Timeout   time.Duration
	StateTTL  time.Duration
	LeaseWait time.Duration
	// Locker, when set, serialises refreshes across instances.
	Locker lease.Locker
	Logger *zap.Logger
}

// Grant is the outcome of BeginAuthorization.
type Grant struct {
	URL               string
	AlreadyAuthorized bool
	AccountEmail      string
}

// Completion is the outcome of CompleteAuthorization.
type Completion struct {
	Identity     string
	AccountEmail string
	Token        *oauth2.Token
}

// Manager moves identities through unauthorized, pending and authorized,
// and refreshes credentials at most once per identity at a time.
type Manager struct {
	oauth       OAuthClient
	store       store.Store
	enc         crypto.Encryptor
	locker      lease.Locker
	stateSecret []byte
	skew        time.Duration
	timeout     time.Duration
	stateTTL    time.Duration
	leaseWait   time.Duration
	owner       string
	group       singleflight.Group
	log         *zap.Logger
	now         func() time.Time
}

// NewManager creates a Manager.
func NewManager(oauth OAuthClient, st store.Store, enc crypto.Encryptor, stateSecret []byte, opts Options) *Manager {
	m := &Manager{
		oauth:       oauth,
		store:       st,
		enc:         enc,
		locker:      opts.Locker,
		stateSecret: stateSecret,
		skew:        opts.Skew,
		timeout:     opts.Timeout,
		stateTTL:    opts.StateTTL,
		leaseWait:   opts.LeaseWait,
		owner:       uuid.NewString(),
		log:         opts.Logger,
		now:         time.Now,
	}
	if m.skew <= 0 {
		m.skew = DefaultSkew
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.stateTTL <= 0 {
		m.stateTTL = DefaultStateTTL
	}
	if m.leaseWait <= 0 {
		m.leaseWait = DefaultLeaseWait
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

func (m *Manager) fresh(rec *model.AuthorizationRecord) bool {
	return rec.EncryptedAccessToken != "" && rec.Expiry.After(m.now().Add(m.skew))
}

func authRequired(op string, err error) error {
	return apperr.New(apperr.KindAuthorizationRequired, op, "", err)
}

func unavailable(op string, err error) error {
	return apperr.New(apperr.KindUnavailable, op, "", err)
}

// loadAuthorized returns the record only when its status is authorized.
func (m *Manager) loadAuthorized(ctx context.Context, op, identity string) (*model.AuthorizationRecord, error) {
	rec, err := m.store.Get(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, authRequired(op, err)
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	if rec.Status != model.StatusAuthorized {
		return nil, authRequired(op, fmt.Errorf("status %s", rec.Status))
	}
	return rec, nil
}

func (m *Manager) decrypt(ctx context.Context, rec *model.AuthorizationRecord) (access, refresh string, err error) {
	access, err = m.enc.Decrypt(ctx, rec.Identity, rec.EncryptedAccessToken)
	if err != nil {
		return "", "", fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err = m.enc.Decrypt(ctx, rec.Identity, rec.EncryptedRefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("decrypt refresh token: %w", err)
	}
	return access, refresh, nil
}

func (m *Manager) token(ctx context.Context, rec *model.AuthorizationRecord) (*oauth2.Token, error) {
	access, refresh, err := m.decrypt(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Expiry:       rec.Expiry,
	}, nil
}

// EnsureAuthorized returns a credential that does not expire within the
// skew window, refreshing it when needed.
func (m *Manager) EnsureAuthorized(ctx context.Context, identity string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rec, err := m.loadAuthorized(ctx, "ensure authorized", identity)
	if err != nil {
		return nil, err
	}
	if m.fresh(rec) {
		tok, err := m.token(ctx, rec)
		if err != nil {
			return nil, apperr.New(apperr.KindInternal, "ensure authorized", "", err)
		}
		return tok, nil
	}

	stale, err := m.enc.Decrypt(ctx, identity, rec.EncryptedAccessToken)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "ensure authorized", "", err)
	}
	return m.refresh(ctx, identity, stale)
}

// ForceRefresh replaces a credential the storage provider rejected.
// If another request already replaced it, that credential is returned.
func (m *Manager) ForceRefresh(ctx context.Context, identity string, rejected *oauth2.Token) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	stale := ""
	if rejected != nil {
		stale = rejected.AccessToken
	}
	return m.refresh(ctx, identity, stale)
}

// refresh deduplicates concurrent refreshes for one identity in this
// process. The lease extends that across processes.
func (m *Manager) refresh(ctx context.Context, identity, staleAccess string) (*oauth2.Token, error) {
	v, err, shared := m.group.Do(identity, func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.doRefresh(rctx, identity, staleAccess)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug("shared credential refresh", zap.String("identity", identity))
	}
	return v.(*oauth2.Token), nil
}

func (m *Manager) doRefresh(ctx context.Context, identity, staleAccess string) (*oauth2.Token, error) {
	const op = "refresh credential"

	if m.locker != nil {
		key := "refresh:" + identity
		if _, err := lease.AcquireWait(ctx, m.locker, key, m.owner, m.leaseWait); err != nil {
			return nil, unavailable(op, err)
		}
		defer func() {
			if err := m.locker.Release(context.WithoutCancel(ctx), key, m.owner); err != nil {
				m.log.Warn("failed to release refresh lease", zap.String("identity", identity), zap.Error(err))
			}
		}()
	}

	// Re-read under the lease: another holder may have refreshed already.
	rec, err := m.loadAuthorized(ctx, op, identity)
	if err != nil {
		return nil, err
	}
	access, refreshToken, err := m.decrypt(ctx, rec)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, op, "", err)
	}
	if m.fresh(rec) && access != staleAccess {
		return m.token(ctx, rec)
	}
	if refreshToken == "" {
		m.revert(ctx, rec)
		return nil, authRequired(op, errors.New("no refresh credential"))
	}

	tok, err := m.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRevoked) {
			m.log.Info("refresh credential rejected, reverting to unauthorized", zap.String("identity", identity), zap.Error(err))
			m.revert(ctx, rec)
			return nil, authRequired(op, err)
		}
		m.log.Warn("credential refresh failed", zap.String("identity", identity), zap.Error(err))
		return nil, unavailable(op, err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	next := *rec
	if err := m.seal(ctx, &next, tok); err != nil {
		return nil, apperr.New(apperr.KindInternal, op, "", err)
	}
	next.Version++
	next.UpdatedAt = m.now()
	if err := m.store.Put(ctx, &next); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Lost the race without a lease; take the winner's credential.
			if cur, gerr := m.loadAuthorized(ctx, op, identity); gerr == nil && m.fresh(cur) {
				return m.token(ctx, cur)
			}
		}
		return nil, unavailable(op, err)
	}

	m.log.Info("refreshed credential", zap.String("identity", identity), zap.Time("expiry", tok.Expiry))
	return tok, nil
}

// seal encrypts tok into rec and marks it authorized.
func (m *Manager) seal(ctx context.Context, rec *model.AuthorizationRecord, tok *oauth2.Token) error {
	encAccess, err := m.enc.Encrypt(ctx, rec.Identity, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := m.enc.Encrypt(ctx, rec.Identity, tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	rec.Status = model.StatusAuthorized
	rec.EncryptedAccessToken = encAccess
	rec.EncryptedRefreshToken = encRefresh
	rec.Expiry = tok.Expiry
	rec.PendingNonce = ""
	return nil
}

// revert drops credentials so the next request asks for SETUP again.
func (m *Manager) revert(ctx context.Context, rec *model.AuthorizationRecord) {
	next := model.AuthorizationRecord{
		Identity:  rec.Identity,
		Status:    model.StatusUnauthorized,
		Version:   rec.Version + 1,
		UpdatedAt: m.now(),
	}
	if err := m.store.Put(ctx, &next); err != nil {
		m.log.Warn("failed to revert authorization", zap.String("identity", rec.Identity), zap.Error(err))
	}
}

// BeginAuthorization issues a one-time grant URL. An identity that is
// already authorized is left untouched.
func (m *Manager) BeginAuthorization(ctx context.Context, identity string) (*Grant, error) {
	const op = "begin authorization"
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rec, err := m.store.Get(ctx, identity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = &model.AuthorizationRecord{Identity: identity}
	case err != nil:
		return nil, unavailable(op, err)
	case rec.Status == model.StatusAuthorized:
		return &Grant{AlreadyAuthorized: true, AccountEmail: rec.AccountEmail}, nil
	}

	nonce := uuid.NewString()
	state, err := signState(m.stateSecret, identity, nonce, m.now().Add(m.stateTTL))
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, op, "", err)
	}

	next := model.AuthorizationRecord{
		Identity:     identity,
		Status:       model.StatusPending,
		PendingNonce: nonce,
		Version:      rec.Version + 1,
		UpdatedAt:    m.now(),
	}
	if err := m.store.Put(ctx, &next); err != nil {
		return nil, unavailable(op, err)
	}

	m.log.Info("issued authorization grant", zap.String("identity", identity))
	return &Grant{URL: m.oauth.AuthCodeURL(state)}, nil
}

// CompleteAuthorization redeems the grant identified by state with code.
// Each grant can be redeemed once.
func (m *Manager) CompleteAuthorization(ctx context.Context, state, code string) (*Completion, error) {
	const op = "complete authorization"
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	identity, nonce, err := parseState(m.stateSecret, state)
	if err != nil {
		return nil, apperr.New(apperr.KindForbidden, op, "", err)
	}
	if code == "" {
		return nil, apperr.New(apperr.KindParse, op, identity, errors.New("missing code"))
	}

	rec, err := m.store.Get(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindForbidden, op, identity, err)
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	if rec.Status != model.StatusPending || rec.PendingNonce != nonce {
		return nil, apperr.New(apperr.KindForbidden, op, identity, errors.New("grant already used or superseded"))
	}

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, ErrRevoked) {
			return nil, authRequired(op, err)
		}
		return nil, unavailable(op, err)
	}
	if tok.RefreshToken == "" {
		return nil, authRequired(op, errors.New("no refresh token in response"))
	}

	email, err := m.oauth.AccountEmail(ctx, tok)
	if err != nil {
		m.log.Warn("account lookup failed", zap.String("identity", identity), zap.Error(err))
	}

	next := *rec
	if err := m.seal(ctx, &next, tok); err != nil {
		return nil, apperr.New(apperr.KindInternal, op, "", err)
	}
	next.AccountEmail = email
	next.Version++
	next.UpdatedAt = m.now()
	if err := m.store.Put(ctx, &next); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, apperr.New(apperr.KindForbidden, op, identity, err)
		}
		return nil, unavailable(op, err)
	}

	m.log.Info("authorization completed", zap.String("identity", identity))
	return &Completion{Identity: identity, AccountEmail: email, Token: tok}, nil
}

// ImportRefreshToken stores an authorized record from an existing refresh
// credential. The first request refreshes it into an access credential.
func (m *Manager) ImportRefreshToken(ctx context.Context, identity, refreshToken string) error {
	const op = "import refresh token"
	if refreshToken == "" {
		return apperr.New(apperr.KindParse, op, identity, errors.New("empty refresh token"))
	}

	rec, err := m.store.Get(ctx, identity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = &model.AuthorizationRecord{Identity: identity}
	case err != nil:
		return unavailable(op, err)
	}

	next := model.AuthorizationRecord{Identity: identity, AccountEmail: rec.AccountEmail}
	if err := m.seal(ctx, &next, &oauth2.Token{RefreshToken: refreshToken}); err != nil {
		return apperr.New(apperr.KindInternal, op, "", err)
	}
	next.Version = rec.Version + 1
	next.UpdatedAt = m.now()
	if err := m.store.Put(ctx, &next); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// Status reports the stored authorization state.
func (m *Manager) Status(ctx context.Context, identity string) (model.AuthStatus, error) {
	rec, err := m.store.Get(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return model.StatusUnauthorized, nil
	}
	if err != nil {
		return "", unavailable("authorization status", err)
	}
	return rec.Status, nil
}
