package portal

import (
	"context"
)

// Release represents the latest release descriptor of a mod on the portal
type Release struct {
	Version     string `json:"version"`      // Release version string
	SHA1        string `json:"sha1"`         // SHA1 of the release zip
	DownloadURL string `json:"download_url"` // Portal-relative download path
	FileName    string `json:"file_name"`    // Zip file name (e.g., "bigger-cars_1.3.0.zip")
}

// ModInfo represents one mod in the portal's catalog response
type ModInfo struct {
	Name          string   `json:"name"`
	LatestRelease *Release `json:"latest_release"`
}

// ModsResponse represents the portal's catalog response
type ModsResponse struct {
	Results []ModInfo `json:"results"`
}

// Client defines the interface for mod portal operations
type Client interface {
	// FetchMods fetches the mod catalog restricted to the given
	// Factorio major.minor version
	FetchMods(ctx context.Context, version string) (*ModsResponse, error)

	// DownloadRelease downloads a release zip into destDir and returns
	// the path of the written file
	DownloadRelease(ctx context.Context, release *Release, destDir string) (string, error)
}

// BuildIndex maps mod name to its latest release descriptor. Entries with a
// missing name or release are skipped.
func BuildIndex(resp *ModsResponse) map[string]*Release {
	index := make(map[string]*Release, len(resp.Results))
	for _, mod := range resp.Results {
		if mod.Name == "" || mod.LatestRelease == nil {
			continue
		}
		index[mod.Name] = mod.LatestRelease
	}
	return index
}
