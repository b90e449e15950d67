// Package manifest keeps the local copy of the Destiny world content database current.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getsentry/raven-go"
	"github.com/klauspost/compress/zip"
	"github.com/kpango/glg"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
)

// DatasetFile is the name of the installed world content inside the data directory.
const DatasetFile = "world_content.sqlite"

// Remote is the manifest side of the Bungie API.
type Remote interface {
	GetManifest(ctx context.Context, language string) (*models.ManifestVersion, error)
	Download(ctx context.Context, url string, w io.Writer, progress func(float64)) (int64, error)
}

// VersionStore persists the installed content version.
type VersionStore interface {
	ManifestVersion(ctx context.Context) (string, error)
	SetManifestVersion(ctx context.Context, version string) error
}

// Synchronizer downloads and installs new versions of the world content. Only one sync
// runs at a time.
type Synchronizer struct {
	remote   Remote
	versions VersionStore
	dir      string

	// Language selects which world content database is installed.
	Language string
	// OnInstalled is called after a new version is in place, typically Database.Reload.
	OnInstalled func() error

	mu sync.Mutex
}

// NewSynchronizer installs content into dir.
func NewSynchronizer(remote Remote, versions VersionStore, dir string) *Synchronizer {
	return &Synchronizer{
		remote:   remote,
		versions: versions,
		dir:      dir,
	}
}

// Path is where the active dataset lives.
func (s *Synchronizer) Path() string {
	return filepath.Join(s.dir, DatasetFile)
}

// Sync brings the installed content up to date. progress receives a non-decreasing fraction
// in [0, 1]. On any failure the previously installed dataset and version are left as they were.
func (s *Synchronizer) Sync(ctx context.Context, progress func(float64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if progress == nil {
		progress = func(float64) {}
	}

	remote, err := s.remote.GetManifest(ctx, s.Language)
	if err != nil {
		glg.Errorf("Failed to load manifest metadata: %s", err.Error())
		return status.Errorf(status.KindSyncNetwork, err)
	}

	installed, err := s.versions.ManifestVersion(ctx)
	if err != nil {
		return status.Errorf(status.KindSyncIO, err)
	}

	if installed == remote.ContentVersion {
		glg.Debugf("World content %s is up to date", installed)
		progress(1)
		return nil
	}

	glg.Infof("Updating world content from %q to %q", installed, remote.ContentVersion)
	start := time.Now()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return status.Errorf(status.KindSyncIO, err)
	}

	archive, err := os.CreateTemp(s.dir, "manifest-*.zip")
	if err != nil {
		return status.Errorf(status.KindSyncIO, err)
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	n, err := s.remote.Download(ctx, remote.DownloadURL, archive, progress)
	if err != nil {
		glg.Errorf("Failed to download world content: %s", err.Error())
		return status.Errorf(status.KindSyncNetwork, err)
	}
	glg.Infof("Downloaded %s of world content", humanize.Bytes(uint64(n)))

	if err := s.install(archive, n); err != nil {
		raven.CaptureError(err, map[string]string{"version": remote.ContentVersion})
		glg.Errorf("Failed to install world content: %s", err.Error())
		return err
	}

	// Only recorded once the new content is fully in place
	if err := s.versions.SetManifestVersion(ctx, remote.ContentVersion); err != nil {
		return status.Errorf(status.KindSyncIO, err)
	}

	if s.OnInstalled != nil {
		if err := s.OnInstalled(); err != nil {
			return status.Errorf(status.KindSyncIO, err)
		}
	}

	glg.Successf("Installed world content %s in %v", remote.ContentVersion, time.Since(start))
	return nil
}

// install extracts the content entry of the archive into a staging file next to the active
// dataset and renames it over the active one.
func (s *Synchronizer) install(archive *os.File, size int64) error {
	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return status.Errorf(status.KindSyncDecompress, err)
	}

	var entry *zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			entry = f
			break
		}
	}
	if entry == nil {
		return status.Errorf(status.KindSyncDecompress, errors.New("archive has no content entry"))
	}

	rc, err := entry.Open()
	if err != nil {
		return status.Errorf(status.KindSyncDecompress, err)
	}
	defer rc.Close()

	staging, err := os.CreateTemp(s.dir, "manifest-*.staging")
	if err != nil {
		return status.Errorf(status.KindSyncIO, err)
	}
	defer os.Remove(staging.Name())

	written, err := io.Copy(staging, rc)
	if err != nil {
		staging.Close()
		// Write failures on the staging file come back as *fs.PathError
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return status.Errorf(status.KindSyncIO, err)
		}
		return status.Errorf(status.KindSyncDecompress, err)
	}
	glg.Debugf("Extracted %s (%s)", entry.Name, humanize.Bytes(uint64(written)))

	if err := staging.Sync(); err != nil {
		staging.Close()
		return status.Errorf(status.KindSyncIO, err)
	}
	if err := staging.Close(); err != nil {
		return status.Errorf(status.KindSyncIO, err)
	}

	if err := os.Rename(staging.Name(), s.Path()); err != nil {
		return status.Errorf(status.KindSyncIO, fmt.Errorf("failed to swap in new content: %w", err))
	}

	return nil
}
