package membership

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kpango/glg"
	"github.com/stretchr/testify/require"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
	"github.com/rking788/objective-tracker/storage"
)

var (
	xbox  = &models.Membership{DisplayName: "rking788", MembershipType: models.Xbox, MembershipID: "4611686018437694484"}
	steam = &models.Membership{DisplayName: "rking788", MembershipType: models.Steam, MembershipID: "4611686018467260757"}
)

func setup() {
	glg.Get().SetLevelMode(glg.DEBG, glg.NONE)
	glg.Get().SetLevelMode(glg.INFO, glg.NONE)
	glg.Get().SetLevelMode(glg.ERR, glg.NONE)
}

type staticFetcher struct {
	memberships []*models.Membership
	err         error
}

func (s staticFetcher) GetMemberships(context.Context) ([]*models.Membership, error) {
	return s.memberships, s.err
}

type countingChooser struct {
	calls  int
	choice int
}

func (c *countingChooser) Choose(_ context.Context, candidates []*models.Membership) (*models.Membership, error) {
	c.calls++
	return candidates[c.choice], nil
}

func newPrefs() *storage.Preferences {
	return storage.NewPreferences(storage.NewMemoryStore())
}

func TestResolveSingleMembership(t *testing.T) {
	setup()
	prefs := newPrefs()
	chooser := &countingChooser{}

	m, err := NewResolver(staticFetcher{memberships: []*models.Membership{xbox}}, prefs, chooser).
		Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, xbox, m)
	require.Zero(t, chooser.calls)

	persisted, err := prefs.Membership(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.Xbox, persisted.MembershipType)
	require.Equal(t, xbox.MembershipID, persisted.MembershipID)
}

func TestResolveMultipleAsksOnce(t *testing.T) {
	setup()
	prefs := newPrefs()
	chooser := &countingChooser{choice: 1}
	resolver := NewResolver(staticFetcher{memberships: []*models.Membership{xbox, steam}}, prefs, chooser)

	m, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, steam, m)
	require.Equal(t, 1, chooser.calls)

	// The choice is remembered
	m, err = resolver.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, steam, m)
	require.Equal(t, 1, chooser.calls)
}

func TestResolvePersistedMembershipNotFetched(t *testing.T) {
	setup()
	prefs := newPrefs()
	stale := &models.Membership{MembershipType: models.PSN, MembershipID: "4611686018400000000"}
	require.NoError(t, prefs.SetMembership(context.Background(), stale))
	chooser := &countingChooser{}

	m, err := NewResolver(staticFetcher{memberships: []*models.Membership{xbox, steam}}, prefs, chooser).
		Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, stale.MembershipType, m.MembershipType)
	require.Equal(t, stale.MembershipID, m.MembershipID)
	require.Zero(t, chooser.calls)
}

func TestResolveNoMemberships(t *testing.T) {
	setup()

	_, err := NewResolver(staticFetcher{}, newPrefs(), &countingChooser{}).Resolve(context.Background())
	require.True(t, errors.Is(err, status.ErrNoMemberships))
	require.True(t, status.IsFatal(err))
}

func TestResolveFetchError(t *testing.T) {
	setup()

	_, err := NewResolver(staticFetcher{err: errors.New("timeout")}, newPrefs(), &countingChooser{}).
		Resolve(context.Background())
	require.Equal(t, status.KindFetchFailed, status.KindOf(err))
	require.False(t, status.IsFatal(err))
}

func TestConsoleChooser(t *testing.T) {
	out := &bytes.Buffer{}
	chooser := &ConsoleChooser{In: strings.NewReader("9\nsteam\n2\n"), Out: out}

	m, err := chooser.Choose(context.Background(), []*models.Membership{xbox, steam})
	require.NoError(t, err)
	require.Equal(t, steam, m)
	require.Contains(t, out.String(), "1) Xbox")
	require.Contains(t, out.String(), "2) Steam")
	require.Contains(t, out.String(), "Please enter one of the listed numbers.")
}

func TestConsoleChooserKeepsLaterLines(t *testing.T) {
	chooser := &ConsoleChooser{In: strings.NewReader("2\n1\n"), Out: io.Discard}
	candidates := []*models.Membership{xbox, steam}

	m, err := chooser.Choose(context.Background(), candidates)
	require.NoError(t, err)
	require.Equal(t, steam, m)

	m, err = chooser.Choose(context.Background(), candidates)
	require.NoError(t, err)
	require.Equal(t, xbox, m)

	_, err = chooser.Choose(context.Background(), candidates)
	require.True(t, errors.Is(err, io.EOF))
}

func TestConsoleChooserEOF(t *testing.T) {
	chooser := &ConsoleChooser{In: strings.NewReader(""), Out: io.Discard}

	_, err := chooser.Choose(context.Background(), []*models.Membership{xbox, steam})
	require.True(t, errors.Is(err, io.EOF))
}

func TestConsoleChooserCanceled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&ConsoleChooser{In: r, Out: io.Discard}).Choose(ctx, []*models.Membership{xbox, steam})
	require.True(t, errors.Is(err, context.Canceled))
}
