// Package auth owns the OAuth credential of the current user. It is the only code that
// writes tokens to the credential store.
package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/kpango/glg"
	"golang.org/x/sync/singleflight"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
	"github.com/rking788/objective-tracker/storage"
)

// Exchanger talks to the remote token endpoint.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*models.TokenGrant, error)
	RefreshAccess(ctx context.Context, refreshToken string) (*models.TokenGrant, error)
}

// Manager runs the token state machine. It is safe for concurrent use: concurrent callers
// of EnsureValidAccess share a single attempt.
type Manager struct {
	creds  *storage.CredentialStore
	tokens Exchanger

	// OnAuthorized is called after the first successful code exchange, outside of any lock.
	OnAuthorized func()

	mu      sync.Mutex
	cred    *models.Credential
	access  atomic.Value
	flights singleflight.Group
	now     func() time.Time
}

// NewManager creates a Manager persisting through creds.
func NewManager(creds *storage.CredentialStore, tokens Exchanger) *Manager {
	m := &Manager{
		creds:  creds,
		tokens: tokens,
		now:    time.Now,
	}
	m.access.Store("")

	return m
}

// AccessToken returns the last known access token, empty when there is none. It never
// blocks on a token exchange in progress.
func (m *Manager) AccessToken() string {
	return m.access.Load().(string)
}

// EnsureValidAccess makes sure a usable access token is available, exchanging the
// authorization code or the refresh token when needed. It is one attempt, there is no retry.
func (m *Manager) EnsureValidAccess(ctx context.Context) error {
	_, err, _ := m.flights.Do("ensure", func() (interface{}, error) {
		m.mu.Lock()
		first, err := m.ensure(ctx)
		m.mu.Unlock()

		// Inside the flight so callers sharing the exchange fire the hook once
		if err == nil && first && m.OnAuthorized != nil {
			m.OnAuthorized()
		}
		return nil, err
	})

	return err
}

// ensure returns true when a first time exchange took place. m.mu must be held.
func (m *Manager) ensure(ctx context.Context) (bool, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return false, err
	}

	if cred.AuthorizationCode == "" {
		return false, status.Errorf(status.KindNotAuthenticated, errors.New("no authorization code stored"))
	}

	if !cred.HasAccess() {
		return true, m.exchange(ctx, cred)
	}

	now := m.now()
	if cred.AccessValid(now) {
		return false, nil
	}

	if !cred.RefreshValid(now) {
		glg.Warnf("Refresh token expired at %v, clearing stored credentials", cred.RefreshExpiry)
		if err := m.clear(ctx); err != nil {
			return false, err
		}
		return false, status.Errorf(status.KindSessionExpired, errors.New("refresh token expired"))
	}

	return false, m.refresh(ctx, cred)
}

func (m *Manager) exchange(ctx context.Context, cred *models.Credential) error {
	glg.Info("Exchanging authorization code for an access token")

	grant, err := m.tokens.ExchangeCode(ctx, cred.AuthorizationCode)
	if err != nil {
		glg.Errorf("Failed to exchange authorization code: %s", err.Error())
		return status.Errorf(status.KindExchangeFailed, err)
	}

	if err := m.creds.SaveRefresh(ctx, grant.RefreshToken, grant.RefreshExpiry); err != nil {
		raven.CaptureError(err, nil)
		return err
	}
	if err := m.creds.SaveAccess(ctx, grant.AccessToken, grant.AccessExpiry); err != nil {
		raven.CaptureError(err, nil)
		return err
	}

	cred.RefreshToken, cred.RefreshExpiry = grant.RefreshToken, grant.RefreshExpiry
	m.setAccess(cred, grant)

	glg.Successf("Authorized membership %s, access valid until %v", grant.MembershipID, grant.AccessExpiry)
	return nil
}

// refresh only ever replaces the access token and its expiry.
func (m *Manager) refresh(ctx context.Context, cred *models.Credential) error {
	glg.Info("Refreshing access token")

	grant, err := m.tokens.RefreshAccess(ctx, cred.RefreshToken)
	if err != nil {
		glg.Errorf("Failed to refresh access token: %s", err.Error())
		return status.Errorf(status.KindRefreshFailed, err)
	}

	if err := m.creds.SaveAccess(ctx, grant.AccessToken, grant.AccessExpiry); err != nil {
		raven.CaptureError(err, nil)
		return err
	}
	m.setAccess(cred, grant)

	glg.Debugf("Access token refreshed, valid until %v", grant.AccessExpiry)
	return nil
}

func (m *Manager) setAccess(cred *models.Credential, grant *models.TokenGrant) {
	cred.AccessToken, cred.AccessExpiry = grant.AccessToken, grant.AccessExpiry
	m.access.Store(grant.AccessToken)
}

func (m *Manager) load(ctx context.Context) (*models.Credential, error) {
	if m.cred != nil {
		return m.cred, nil
	}

	cred, err := m.creds.Load(ctx)
	if err != nil {
		glg.Errorf("Failed to load stored credentials: %s", err.Error())
		raven.CaptureError(err, nil)
		return nil, err
	}

	m.cred = cred
	if cred.HasAccess() {
		m.access.Store(cred.AccessToken)
	}

	return cred, nil
}

func (m *Manager) clear(ctx context.Context) error {
	m.cred = &models.Credential{}
	m.access.Store("")

	if err := m.creds.Clear(ctx); err != nil {
		raven.CaptureError(err, nil)
		return err
	}

	return nil
}

// Authorize stores a new authorization code returned by the consent step. Any tokens
// issued for a previous code are dropped, the next EnsureValidAccess exchanges the new one.
func (m *Manager) Authorize(ctx context.Context, code string) error {
	if code == "" {
		return status.Errorf(status.KindNotAuthenticated, errors.New("empty authorization code"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.creds.ClearTokens(ctx); err != nil {
		return err
	}
	if err := m.creds.SaveAuthorizationCode(ctx, code); err != nil {
		return err
	}

	m.cred = &models.Credential{AuthorizationCode: code}
	m.access.Store("")

	return nil
}

// Logout forgets every stored credential value.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.clear(ctx)
}
