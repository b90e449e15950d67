package manifest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/kpango/glg"
	"github.com/stretchr/testify/require"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
	"github.com/rking788/objective-tracker/storage"
)

func setup() {
	glg.Get().SetLevelMode(glg.DEBG, glg.NONE)
	glg.Get().SetLevelMode(glg.INFO, glg.NONE)
	glg.Get().SetLevelMode(glg.OK, glg.NONE)
	glg.Get().SetLevelMode(glg.WARN, glg.NONE)
	glg.Get().SetLevelMode(glg.ERR, glg.NONE)
}

type fakeRemote struct {
	version     string
	archive     []byte
	metadataErr error
	downloadErr error
	downloads   int
	// during is called half way through the download
	during func()
}

func (f *fakeRemote) GetManifest(_ context.Context, language string) (*models.ManifestVersion, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}

	return &models.ManifestVersion{
		ContentVersion: f.version,
		DownloadURL:    "https://www.bungie.net/common/destiny2_content/sqlite/" + language + "/world.content",
	}, nil
}

func (f *fakeRemote) Download(_ context.Context, _ string, w io.Writer, progress func(float64)) (int64, error) {
	f.downloads++

	half := len(f.archive) / 2
	n, err := w.Write(f.archive[:half])
	if err != nil {
		return int64(n), err
	}
	progress(0.5)

	if f.during != nil {
		f.during()
	}
	if f.downloadErr != nil {
		return int64(n), f.downloadErr
	}

	m, err := w.Write(f.archive[half:])
	progress(1)

	return int64(n + m), err
}

// buildContent creates a world content database with a couple of definitions and returns
// it zipped.
func buildContent(t *testing.T, itemName string) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "content.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	for _, stmt := range []string{
		"CREATE TABLE DestinyInventoryItemDefinition (id INTEGER PRIMARY KEY NOT NULL, json BLOB)",
		"CREATE TABLE DestinyMilestoneDefinition (id INTEGER PRIMARY KEY NOT NULL, json BLOB)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	_, err = db.Exec("INSERT INTO DestinyInventoryItemDefinition (id, json) VALUES (?, ?), (?, ?)",
		definitionID(1001), `{"displayProperties":{"name":"`+itemName+`","description":"Complete strikes."},"itemTypeDisplayName":"Bounty"}`,
		definitionID(3159615086), `{"displayProperties":{"name":"Glimmer"},"itemTypeDisplayName":"Currency","redacted":true}`)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO DestinyMilestoneDefinition (id, json) VALUES (?, ?)",
		definitionID(2188900244), `{"displayProperties":{"name":"Daily Heroic Story Mission"},"milestoneType":4}`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	f, err := zw.Create("world_sql_content_a1b2c3.content")
	require.NoError(t, err)
	_, err = f.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

type syncFixture struct {
	dir    string
	remote *fakeRemote
	prefs  *storage.Preferences
	sync   *Synchronizer
	db     *Database
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	setup()

	f := &syncFixture{
		dir:    t.TempDir(),
		remote: &fakeRemote{},
		prefs:  storage.NewPreferences(storage.NewMemoryStore()),
	}
	f.sync = NewSynchronizer(f.remote, f.prefs, f.dir)
	f.sync.Language = "en"

	db, err := OpenDatabase(f.sync.Path())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	f.db = db
	f.sync.OnInstalled = db.Reload

	return f
}

func (f *syncFixture) installed(t *testing.T) string {
	t.Helper()

	v, err := f.prefs.ManifestVersion(context.Background())
	require.NoError(t, err)

	return v
}

// leftovers lists anything in the data dir besides the active dataset.
func (f *syncFixture) leftovers(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if e.Name() != DatasetFile {
			names = append(names, e.Name())
		}
	}

	return names
}

func TestSyncUpToDate(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	require.NoError(t, f.prefs.SetManifestVersion(ctx, "A"))
	f.remote.version = "A"

	var fractions []float64
	require.NoError(t, f.sync.Sync(ctx, func(p float64) { fractions = append(fractions, p) }))

	require.Zero(t, f.remote.downloads)
	require.Equal(t, []float64{1}, fractions)
	require.Equal(t, "A", f.installed(t))
}

func TestSyncInstallsNewVersion(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	require.NoError(t, f.prefs.SetManifestVersion(ctx, "A"))
	f.remote.version = "B"
	f.remote.archive = buildContent(t, "Vanguard Bounty")

	var fractions []float64
	require.NoError(t, f.sync.Sync(ctx, func(p float64) { fractions = append(fractions, p) }))

	require.Equal(t, 1, f.remote.downloads)
	require.Equal(t, "B", f.installed(t))
	require.Equal(t, []float64{0.5, 1}, fractions)
	require.Empty(t, f.leftovers(t))

	item, err := f.db.ItemDefinition(ctx, 1001)
	require.NoError(t, err)
	require.Equal(t, "Vanguard Bounty", item.Name)
	require.Equal(t, "Bounty", item.ItemTypeDisplayName)

	// Hashes above MaxInt32 are stored as negative ids
	glimmer, err := f.db.ItemDefinition(ctx, 3159615086)
	require.NoError(t, err)
	require.True(t, glimmer.Redacted)

	milestone, err := f.db.MilestoneDefinition(ctx, 2188900244)
	require.NoError(t, err)
	require.Equal(t, models.DailyMilestone, milestone.MilestoneType)

	missing, err := f.db.ItemDefinition(ctx, 42)
	require.NoError(t, err)
	require.Nil(t, missing)

	// A second sync against the same version does nothing
	require.NoError(t, f.sync.Sync(ctx, nil))
	require.Equal(t, 1, f.remote.downloads)
}

func TestSyncNeverExposesPartialContent(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.remote.version = "A"
	f.remote.archive = buildContent(t, "Old Bounty")
	require.NoError(t, f.sync.Sync(ctx, nil))
	old, err := os.ReadFile(f.sync.Path())
	require.NoError(t, err)

	f.remote.version = "B"
	f.remote.archive = buildContent(t, "New Bounty")
	f.remote.during = func() {
		current, err := os.ReadFile(f.sync.Path())
		require.NoError(t, err)
		require.Equal(t, old, current)

		item, err := f.db.ItemDefinition(ctx, 1001)
		require.NoError(t, err)
		require.Equal(t, "Old Bounty", item.Name)
	}
	require.NoError(t, f.sync.Sync(ctx, nil))

	item, err := f.db.ItemDefinition(ctx, 1001)
	require.NoError(t, err)
	require.Equal(t, "New Bounty", item.Name)
}

func TestSyncFailuresKeepInstalledContent(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.remote.version = "A"
	f.remote.archive = buildContent(t, "Old Bounty")
	require.NoError(t, f.sync.Sync(ctx, nil))
	old, err := os.ReadFile(f.sync.Path())
	require.NoError(t, err)

	cases := []struct {
		name  string
		setup func(r *fakeRemote)
		kind  status.Kind
	}{
		{"metadata", func(r *fakeRemote) { r.metadataErr = errors.New("connection reset") }, status.KindSyncNetwork},
		{"download", func(r *fakeRemote) { r.downloadErr = errors.New("unexpected EOF") }, status.KindSyncNetwork},
		{"not a zip", func(r *fakeRemote) { r.archive = []byte("<html>maintenance</html>") }, status.KindSyncDecompress},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.remote.version = "B"
			f.remote.archive = buildContent(t, "New Bounty")
			f.remote.metadataErr, f.remote.downloadErr = nil, nil
			tc.setup(f.remote)

			err := f.sync.Sync(ctx, nil)
			require.Error(t, err)
			require.Equal(t, tc.kind, status.KindOf(err))

			require.Equal(t, "A", f.installed(t))
			current, err := os.ReadFile(f.sync.Path())
			require.NoError(t, err)
			require.Equal(t, old, current)
			require.Empty(t, f.leftovers(t))
		})
	}
}

func TestSyncEmptyArchive(t *testing.T) {
	f := newSyncFixture(t)

	buf := &bytes.Buffer{}
	require.NoError(t, zip.NewWriter(buf).Close())
	f.remote.version = "B"
	f.remote.archive = buf.Bytes()

	err := f.sync.Sync(context.Background(), nil)
	require.Equal(t, status.KindSyncDecompress, status.KindOf(err))
	require.Empty(t, f.installed(t))
	require.NoFileExists(t, f.sync.Path())
}

func TestDatabaseWithoutContent(t *testing.T) {
	setup()

	db, err := OpenDatabase(filepath.Join(t.TempDir(), DatasetFile))
	require.NoError(t, err)
	defer db.Close()

	item, err := db.ItemDefinition(context.Background(), 1001)
	require.NoError(t, err)
	require.Nil(t, item)

	milestone, err := db.MilestoneDefinition(context.Background(), 2188900244)
	require.NoError(t, err)
	require.Nil(t, milestone)
}
