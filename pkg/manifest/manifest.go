package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Mod represents one mod entry inside a pack
type Mod struct {
	Name    string `json:"name"`    // Mod name as known to the mod portal
	Version string `json:"version"` // Currently recorded version
	SHA1    string `json:"sha1"`    // SHA1 of the recorded release zip
	Enabled bool   `json:"enabled"` // Whether the mod is active in this pack
}

// Pack represents a named mod pack tied to one Factorio major.minor version
type Pack struct {
	Name            string `json:"name"`
	FactorioVersion string `json:"factorio_version"`
	Mods            []Mod  `json:"mods"`
	UpdatedAtMs     int64  `json:"updated_at_ms,omitempty"` // Last commit timestamp in milliseconds
}

// Load reads the mod pack manifest from path. The manifest must be a JSON
// array of packs; anything else is rejected before decoding.
func Load(path string) ([]*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("manifest %s: expected a JSON array of packs", path)
	}

	var packs []*Pack
	if err := json.Unmarshal(raw, &packs); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return packs, nil
}

// Save serializes the full manifest back to path, replacing its contents.
// Output is tab-indented to keep diffs against hand-edited manifests small.
func Save(path string, packs []*Pack) error {
	data, err := json.MarshalIndent(packs, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// Archive copies the current on-disk manifest to "<path>.<unix-seconds>"
// and returns the archive path. The copy is byte-identical to the source;
// callers must archive before any rewrite of the manifest.
func Archive(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest for archival: %w", err)
	}

	archivePath := fmt.Sprintf("%s.%d", path, time.Now().Unix())
	if err := os.WriteFile(archivePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	return archivePath, nil
}
