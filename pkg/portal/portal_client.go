package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dikkadev/fmu/pkg/logging"
)

const (
	defaultBaseURL   = "https://mods.factorio.com"
	defaultUserAgent = "fmu/dev"

	// Catalog responses are a few MB of JSON; release zips can be large.
	metaTimeout     = 120 * time.Second
	downloadTimeout = 300 * time.Second
)

// client implements the Client interface against the Factorio mod portal
type client struct {
	apiURL    string // catalog URL template with a {version} placeholder
	cachePath string // where to dump the raw catalog response, empty to disable
	baseURL   string // scheme+host for download_url paths
	username  string
	token     string
	userAgent string

	metaClient *http.Client
	// portalClient never follows redirects: the first download hop must
	// surface its Location header instead of being chased with credentials
	// attached.
	portalClient *http.Client
	cdnClient    *http.Client

	log zerolog.Logger
}

// Option configures a portal client
type Option func(*client)

// WithBaseURL overrides the portal host used for release downloads
func WithBaseURL(url string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithUserAgent sets the User-Agent sent on all portal and CDN requests
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

// WithTimeouts overrides the catalog and download timeouts
func WithTimeouts(meta, download time.Duration) Option {
	return func(c *client) {
		c.metaClient.Timeout = meta
		c.portalClient.Timeout = download
		c.cdnClient.Timeout = download
	}
}

// NewClient creates a new mod portal client. apiURL is the catalog URL
// template ({version} placeholder); cachePath receives the raw catalog
// response for debugging and may be empty.
func NewClient(apiURL, cachePath, username, token string, opts ...Option) Client {
	c := &client{
		apiURL:    apiURL,
		cachePath: cachePath,
		baseURL:   defaultBaseURL,
		username:  username,
		token:     token,
		userAgent: defaultUserAgent,
		metaClient: &http.Client{
			Timeout: metaTimeout,
		},
		portalClient: &http.Client{
			Timeout: downloadTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cdnClient: &http.Client{
			Timeout: downloadTimeout,
		},
		log: logging.GetLogger("portal"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchMods fetches the mod catalog restricted to the given version
func (c *client) FetchMods(ctx context.Context, version string) (*ModsResponse, error) {
	url := strings.ReplaceAll(c.apiURL, "{version}", version)
	c.log.Info().Str("url", url).Msg("Fetching mod catalog")

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.metaClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mod catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch mod catalog: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}

	// Cache is a debugging aid only, never read back as an input.
	if c.cachePath != "" {
		if err := os.WriteFile(c.cachePath, body, 0644); err != nil {
			c.log.Warn().Err(err).Str("path", c.cachePath).Msg("Failed to write catalog cache")
		}
	}

	var mods ModsResponse
	if err := json.Unmarshal(body, &mods); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	c.log.Info().Int("mods", len(mods.Results)).Msg("Fetched mod catalog")
	return &mods, nil
}

// DownloadRelease downloads a release zip into destDir. The portal answers
// authenticated download requests with a redirect to a signed CDN URL; that
// redirect is followed manually so the second hop carries no credentials.
func (c *client) DownloadRelease(ctx context.Context, release *Release, destDir string) (string, error) {
	url := fmt.Sprintf("%s%s?username=%s&token=%s", c.baseURL, release.DownloadURL, c.username, c.token)
	dest := filepath.Join(destDir, release.FileName)

	c.log.Info().Str("file", release.FileName).Msg("Starting download")
	c.log.Debug().Str("url", c.redact(url)).Msg("First hop URL")

	// First hop: expect a redirect carrying the signed CDN location.
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.portalClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request download for %s: %w", release.FileName, err)
	}

	if !isRedirect(resp.StatusCode) {
		c.logResponse(resp, "Expected redirect from portal")
		resp.Body.Close()
		return "", fmt.Errorf("expected redirect for %s, got %s", release.FileName, resp.Status)
	}

	cdnURL := resp.Header.Get("Location")
	if cdnURL == "" {
		c.logResponse(resp, "Redirect without Location header")
		resp.Body.Close()
		return "", fmt.Errorf("redirect %d without Location for %s", resp.StatusCode, release.FileName)
	}
	resp.Body.Close()
	c.log.Info().Int("status", resp.StatusCode).Str("url", cdnURL).Msg("Portal redirect")

	// Second hop: clean request to the CDN, the signed URL is its own auth.
	cdnReq, err := http.NewRequestWithContext(ctx, "GET", cdnURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create CDN request: %w", err)
	}
	cdnReq.Header.Set("User-Agent", c.userAgent)

	cdnResp, err := c.cdnClient.Do(cdnReq)
	if err != nil {
		return "", fmt.Errorf("failed to download %s from CDN: %w", release.FileName, err)
	}
	defer cdnResp.Body.Close()

	if cdnResp.StatusCode != http.StatusOK {
		c.logResponse(cdnResp, "HTTP error from CDN")
		return "", fmt.Errorf("failed to download %s from CDN: %s", release.FileName, cdnResp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, cdnResp.Body)
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write %s: %w", release.FileName, err)
	}

	c.log.Info().Str("file", release.FileName).Int64("bytes", size).Msg("Download complete")
	return dest, nil
}

// redact strips the account token from a URL before it reaches any log output
func (c *client) redact(url string) string {
	if c.token == "" {
		return url
	}
	return strings.ReplaceAll(url, c.token, "***")
}

// logResponse captures status, headers and a body prefix of an unexpected
// response so a failed download can be diagnosed without retrying
func (c *client) logResponse(resp *http.Response, msg string) {
	body := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, body)

	ev := c.log.Error().Int("status", resp.StatusCode).Str("body", string(body[:n]))
	for key, values := range resp.Header {
		ev = ev.Str("header."+key, strings.Join(values, ", "))
	}
	ev.Msg(msg)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
