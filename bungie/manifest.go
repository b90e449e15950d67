package bungie

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rking788/objective-tracker/models"
)

// Definitions looks up static definitions in the installed manifest. A nil definition with
// a nil error means the manifest has no entry for the hash.
type Definitions interface {
	ItemDefinition(ctx context.Context, hash uint) (*models.ItemDefinition, error)
	MilestoneDefinition(ctx context.Context, hash uint) (*models.MilestoneDefinition, error)
}

func (c *Client) resolveDefinitions(ctx context.Context, char *models.Character) error {
	if c.Definitions == nil {
		return nil
	}

	for _, item := range char.Inventory {
		def, err := c.Definitions.ItemDefinition(ctx, item.ItemHash)
		if err != nil {
			return fmt.Errorf("failed to look up item %d: %w", item.ItemHash, err)
		}
		item.Definition = def
	}

	for _, milestone := range char.Milestones {
		def, err := c.Definitions.MilestoneDefinition(ctx, milestone.MilestoneHash)
		if err != nil {
			return fmt.Errorf("failed to look up milestone %d: %w", milestone.MilestoneHash, err)
		}
		milestone.Definition = def
	}

	return nil
}

// ManifestResponse is the response from the GetDestinyManifest endpoint.
//https://bungie-net.github.io/multi/operation_get_Destiny2-GetDestinyManifest.html
type ManifestResponse struct {
	BaseResponse
	Response *struct {
		Version                 string            `json:"version"`
		MobileWorldContentPaths map[string]string `json:"mobileWorldContentPaths"`
	} `json:"Response"`
}

// GetManifest requests the current manifest version and the download location of the
// world content database for the given language.
func (c *Client) GetManifest(ctx context.Context, language string) (*models.ManifestVersion, error) {
	if language == "" {
		language = DefaultLanguage
	}

	response := ManifestResponse{}
	if err := c.Execute(ctx, NewGetManifestRequest(), &response); err != nil {
		return nil, err
	}

	if response.Response == nil || response.Response.Version == "" {
		return nil, fmt.Errorf("manifest response did not include a version")
	}

	path, ok := response.Response.MobileWorldContentPaths[language]
	if !ok || path == "" {
		return nil, fmt.Errorf("manifest has no world content for language %q", language)
	}

	downloadURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		downloadURL = c.BaseURL + path
	}

	return &models.ManifestVersion{
		ContentVersion: response.Response.Version,
		DownloadURL:    downloadURL,
	}, nil
}

// progressWriter reports the fraction of total bytes written so far. The fraction never
// decreases and never exceeds 1.
type progressWriter struct {
	total    int64
	written  int64
	last     float64
	progress func(float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 && p.progress != nil {
		fraction := float64(p.written) / float64(p.total)
		if fraction > 1 {
			fraction = 1
		}
		if fraction > p.last {
			p.last = fraction
			p.progress(fraction)
		}
	}

	return len(b), nil
}

// Download streams the archive at downloadURL into w, calling progress as bytes arrive.
// The number of bytes written is returned.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer, progress func(float64)) (int64, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Api-Key", c.APIKey)

	// Archive downloads can be large, the client timeout does not apply here
	resp, err := (&http.Client{Transport: c.Transport}).Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &APIError{HTTPStatus: resp.StatusCode, ErrorStatus: http.StatusText(resp.StatusCode),
			Message: "manifest download failed"}
	}

	pw := &progressWriter{total: resp.ContentLength, progress: progress}
	n, err := io.Copy(w, io.TeeReader(resp.Body, pw))
	if err != nil {
		return n, err
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short manifest download: got %d of %d bytes", n, resp.ContentLength)
	}

	if progress != nil && pw.last < 1 {
		progress(1)
	}

	return n, nil
}
