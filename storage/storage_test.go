package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kpango/glg"
	"github.com/stretchr/testify/require"

	"github.com/rking788/objective-tracker/models"
)

func setup() {
	glg.Get().SetLevelMode(glg.DEBG, glg.NONE)
	glg.Get().SetLevelMode(glg.INFO, glg.NONE)
}

func testStores(t *testing.T) map[string]Store {
	setup()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "a", "1"))
			require.NoError(t, s.Set(ctx, "a", "2"))
			require.NoError(t, s.Set(ctx, "b", "3"))

			v, err := s.Get(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, "2", v)

			require.NoError(t, s.Delete(ctx, "a", "b", "never-set"))
			_, err = s.Get(ctx, "b")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("cassandra", "")
	require.Error(t, err)

	s, err := Open(MemoryDriver, "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentialStore(NewMemoryStore())

	empty, err := creds.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, empty.AuthorizationCode)
	require.False(t, empty.HasAccess())

	accessExpiry := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	refreshExpiry := accessExpiry.Add(90 * 24 * time.Hour)

	require.NoError(t, creds.SaveAuthorizationCode(ctx, "code"))
	require.NoError(t, creds.SaveAccess(ctx, "access", accessExpiry))
	require.NoError(t, creds.SaveRefresh(ctx, "refresh", refreshExpiry))

	loaded, err := creds.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, &models.Credential{
		AuthorizationCode: "code",
		AccessToken:       "access",
		AccessExpiry:      accessExpiry,
		RefreshToken:      "refresh",
		RefreshExpiry:     refreshExpiry,
	}, loaded)

	require.NoError(t, creds.ClearTokens(ctx))
	loaded, err = creds.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "code", loaded.AuthorizationCode)
	require.False(t, loaded.HasAccess())

	require.NoError(t, creds.Clear(ctx))
	loaded, err = creds.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, &models.Credential{}, loaded)
}

func TestCredentialStoreTokenWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, AccessTokenKey, "orphan"))

	loaded, err := NewCredentialStore(s).Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded.AccessToken)
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	prefs := NewPreferences(NewMemoryStore())

	m, err := prefs.Membership(ctx)
	require.NoError(t, err)
	require.Nil(t, m)

	require.NoError(t, prefs.SetMembership(ctx, &models.Membership{MembershipType: models.Steam, MembershipID: "4611"}))
	m, err = prefs.Membership(ctx)
	require.NoError(t, err)
	require.Equal(t, &models.Membership{MembershipType: models.Steam, MembershipID: "4611"}, m)

	v, err := prefs.ManifestVersion(ctx)
	require.NoError(t, err)
	require.Empty(t, v)
	require.NoError(t, prefs.SetManifestVersion(ctx, "A"))
	v, err = prefs.ManifestVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", v)

	require.NoError(t, prefs.Clear(ctx))
	m, err = prefs.Membership(ctx)
	require.NoError(t, err)
	require.Nil(t, m)
}
