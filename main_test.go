package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("BUNGIE_API_KEY", "api-key")
	t.Setenv("BUNGIE_CLIENT_ID", "24297")

	path := filepath.Join(t.TempDir(), "tracker.env")
	require.NoError(t, os.WriteFile(path, []byte("REFRESH_INTERVAL=45s\nBUNGIE_API_KEY=from-file\n"), 0600))

	t.Cleanup(func() { os.Unsetenv("REFRESH_INTERVAL") })

	config, err := loadConfig(&path)
	require.NoError(t, err)
	require.Equal(t, "api-key", config.BungieAPIKey)
	require.Equal(t, 45*time.Second, config.RefreshInterval)
	require.Equal(t, "127.0.0.1:7777", config.CallbackAddr)
	require.Equal(t, 10.0, config.RequestsPerSecond)
	require.Equal(t, filepath.Join("data", "tracker.db"), config.StorePath())
}

func TestLoadConfigMissingKey(t *testing.T) {
	t.Setenv("BUNGIE_API_KEY", "")
	t.Setenv("BUNGIE_CLIENT_ID", "")
	os.Unsetenv("BUNGIE_API_KEY")
	os.Unsetenv("BUNGIE_CLIENT_ID")

	_, err := loadConfig(nil)
	require.Error(t, err)
}

func TestStorePath(t *testing.T) {
	config := &EnvConfig{StoreDriver: "redis", StoreDSN: "redis://localhost:6379", DataDir: "/var/lib/tracker"}
	require.Equal(t, "redis://localhost:6379", config.StorePath())

	config = &EnvConfig{StoreDriver: "sqlite", StoreDSN: "/tmp/tracker.db", DataDir: "/var/lib/tracker"}
	require.Equal(t, "/tmp/tracker.db", config.StorePath())
}

func TestPrintSnapshot(t *testing.T) {
	char := &models.Character{
		CharacterID: "2305843009265042115",
		ClassType:   models.HunterClass,
		Light:       962,
		Inventory: models.ItemList{
			{ItemHash: 1, Definition: &models.ItemDefinition{Name: "Shaxx's Bounty", ItemTypeDisplayName: "Bounty"}},
			{ItemHash: 2, Definition: &models.ItemDefinition{Name: "Classified", Redacted: true}},
			{ItemHash: 3, Definition: &models.ItemDefinition{Name: "A Spark of Hope", ItemTypeDisplayName: "Quest Step"}},
		},
		Milestones: models.MilestoneList{
			{MilestoneHash: 10, Definition: &models.MilestoneDefinition{Name: "Daily Heroic Story Mission", MilestoneType: models.DailyMilestone}},
			{MilestoneHash: 11, Definition: &models.MilestoneDefinition{MilestoneType: models.WeeklyMilestone}},
		},
	}

	buf := &bytes.Buffer{}
	printSnapshot(buf, char, "")
	out := buf.String()
	require.Contains(t, out, "Hunter - 962")
	require.Contains(t, out, "Pursuits (2):")
	require.Contains(t, out, "Shaxx's Bounty [Bounty]")
	require.NotContains(t, out, "Classified")
	require.Contains(t, out, "Daily Heroic Story Mission")
	require.Contains(t, out, "Milestone 11")

	buf.Reset()
	printSnapshot(buf, char, "Quest Step")
	require.Contains(t, buf.String(), "Pursuits, Quest Step only (1):")
	require.NotContains(t, buf.String(), "Shaxx's Bounty")
}

func TestSuperviseSessionsRetriesRecoverableErrors(t *testing.T) {
	results := []error{
		status.Errorf(status.KindFetchFailed, errors.New("connection reset")),
		status.Errorf(status.KindRefreshFailed, errors.New("bad gateway")),
		status.Errorf(status.KindSessionExpired, nil),
		nil,
		status.Errorf(status.KindNoCharacters, nil),
	}

	calls := 0
	err := superviseSessions(context.Background(), time.Millisecond, func(context.Context) error {
		err := results[calls]
		calls++
		return err
	})

	require.True(t, errors.Is(err, status.ErrNoCharacters))
	require.Equal(t, len(results), calls)
}

func TestSuperviseSessionsStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := superviseSessions(ctx, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return status.Errorf(status.KindFetchFailed, errors.New("connection reset"))
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestSuperviseSessionsWaitsBeforeRetrying(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := superviseSessions(ctx, time.Hour, func(context.Context) error {
		calls++
		return status.Errorf(status.KindFetchFailed, errors.New("connection reset"))
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
