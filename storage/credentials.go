package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rking788/objective-tracker/models"
)

// CredentialStore maps a models.Credential onto the key/value Store.
type CredentialStore struct {
	store Store
}

// NewCredentialStore wraps store.
func NewCredentialStore(store Store) *CredentialStore {
	return &CredentialStore{store: store}
}

// Load reads the persisted credential. A credential with an empty AuthorizationCode is
// returned when the user never authorized.
func (c *CredentialStore) Load(ctx context.Context) (*models.Credential, error) {
	cred := &models.Credential{}

	var err error
	if cred.AuthorizationCode, err = getOptional(ctx, c.store, OAuthCodeKey); err != nil {
		return nil, err
	}
	if cred.AccessToken, err = getOptional(ctx, c.store, AccessTokenKey); err != nil {
		return nil, err
	}
	if cred.RefreshToken, err = getOptional(ctx, c.store, RefreshTokenKey); err != nil {
		return nil, err
	}
	if cred.AccessExpiry, err = c.loadTime(ctx, AccessExpiryKey); err != nil {
		return nil, err
	}
	if cred.RefreshExpiry, err = c.loadTime(ctx, RefreshExpiryKey); err != nil {
		return nil, err
	}

	// A token without its expiry is treated as absent
	if cred.AccessExpiry.IsZero() {
		cred.AccessToken = ""
	}
	if cred.RefreshExpiry.IsZero() {
		cred.RefreshToken = ""
	}

	return cred, nil
}

func (c *CredentialStore) loadTime(ctx context.Context, key string) (time.Time, error) {
	raw, err := getOptional(ctx, c.store, key)
	if err != nil || raw == "" {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}

	return t, nil
}

// SaveAuthorizationCode persists the code returned by the consent step.
func (c *CredentialStore) SaveAuthorizationCode(ctx context.Context, code string) error {
	return c.store.Set(ctx, OAuthCodeKey, code)
}

// SaveAccess persists an access token and its expiry. Expiry is written first so a
// token is never visible without it.
func (c *CredentialStore) SaveAccess(ctx context.Context, token string, expiry time.Time) error {
	if err := c.store.Set(ctx, AccessExpiryKey, expiry.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return c.store.Set(ctx, AccessTokenKey, token)
}

// SaveRefresh persists a refresh token and its expiry.
func (c *CredentialStore) SaveRefresh(ctx context.Context, token string, expiry time.Time) error {
	if err := c.store.Set(ctx, RefreshExpiryKey, expiry.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return c.store.Set(ctx, RefreshTokenKey, token)
}

// ClearTokens removes the access and refresh tokens but keeps the authorization code.
func (c *CredentialStore) ClearTokens(ctx context.Context) error {
	return c.store.Delete(ctx, AccessTokenKey, AccessExpiryKey, RefreshTokenKey, RefreshExpiryKey)
}

// Clear removes every credential value.
func (c *CredentialStore) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, OAuthCodeKey, AccessTokenKey, AccessExpiryKey,
		RefreshTokenKey, RefreshExpiryKey)
}

// Preferences holds the selected platform/membership and the installed manifest version.
type Preferences struct {
	store Store
}

// NewPreferences wraps store.
func NewPreferences(store Store) *Preferences {
	return &Preferences{store: store}
}

// Membership returns the persisted membership choice, nil when none was made.
func (p *Preferences) Membership(ctx context.Context) (*models.Membership, error) {
	raw, err := getOptional(ctx, p.store, PlatformKey)
	if err != nil || raw == "" {
		return nil, err
	}

	platform, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid platform value %q: %w", raw, err)
	}
	if models.MembershipType(platform) == models.NoMembership {
		return nil, nil
	}

	id, err := getOptional(ctx, p.store, MembershipIDKey)
	if err != nil {
		return nil, err
	}

	return &models.Membership{MembershipType: models.MembershipType(platform), MembershipID: id}, nil
}

// SetMembership persists the chosen membership.
func (p *Preferences) SetMembership(ctx context.Context, m *models.Membership) error {
	if err := p.store.Set(ctx, MembershipIDKey, m.MembershipID); err != nil {
		return err
	}

	return p.store.Set(ctx, PlatformKey, strconv.Itoa(int(m.MembershipType)))
}

// ManifestVersion returns the installed manifest version, empty when none is installed.
func (p *Preferences) ManifestVersion(ctx context.Context) (string, error) {
	return getOptional(ctx, p.store, ManifestVersionKey)
}

// SetManifestVersion records a newly installed manifest version.
func (p *Preferences) SetManifestVersion(ctx context.Context, version string) error {
	return p.store.Set(ctx, ManifestVersionKey, version)
}

// Clear forgets the membership choice and manifest version.
func (p *Preferences) Clear(ctx context.Context) error {
	return p.store.Delete(ctx, PlatformKey, MembershipIDKey, ManifestVersionKey)
}
