package factorio

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadVersion reads the full game version ("major.minor.patch") from a
// base-info.json file
func ReadVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read version file: %w", err)
	}

	var info struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("failed to parse version file: %w", err)
	}

	if info.Version == "" {
		return "", fmt.Errorf("version file %s has no 'version' field", path)
	}

	return info.Version, nil
}

// MajorMinor reduces a full version string to its "major.minor" prefix.
// Mod compatibility is tracked per major.minor, never per patch release.
func MajorMinor(version string) (string, error) {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid version format: %s", version)
	}
	return parts[0] + "." + parts[1], nil
}
