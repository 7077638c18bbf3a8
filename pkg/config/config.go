package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/adrg/xdg"
)

// placeholderPrefix marks config values that still need to be filled in by
// the user after `fmu configure` wrote the default file
const placeholderPrefix = "<FILL IN"

// Config represents the fmu configuration
type Config struct {
	// Mod portal catalog URL template; {version} is replaced with the
	// Factorio major.minor version
	ModsAPIURL string `json:"mods_api_url"`
	// Path to the mod pack manifest (JSON array of packs); relative paths
	// are resolved against the config file's directory
	ModPacksPath string `json:"mod_packs_path"`
	// Directory the game loads mod zips from
	ModsDir string `json:"mods_dir"`
	// Path to the game's base-info.json (version source)
	FactorioVersionFile string `json:"factorio_version_file"`
	// Mod portal credentials
	Username string `json:"username"`
	Token    string `json:"token"`
}

// DefaultConfig returns the default configuration with placeholders for the
// values only the user can supply
func DefaultConfig() *Config {
	return &Config{
		ModsAPIURL:          "https://mods.factorio.com/api/mods?page_size=max&full=True&version={version}&is_space_age=true",
		ModPacksPath:        "./mod-packs.json",
		ModsDir:             "<FILL IN - path to mods folder>",
		FactorioVersionFile: "<FILL IN - path to base-info.json>",
		Username:            "<FILL IN>",
		Token:               "<FILL IN>",
	}
}

// DefaultPath returns the default config file location
func DefaultPath() (string, error) {
	path, err := xdg.ConfigFile("fmu/config.json")
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	return path, nil
}

// CacheFile returns the path the raw catalog response is cached at
func CacheFile() (string, error) {
	path, err := xdg.CacheFile("fmu/mods-list.json")
	if err != nil {
		return "", fmt.Errorf("failed to resolve cache path: %w", err)
	}
	return path, nil
}

// DataFile returns the path of a file inside fmu's data directory
func DataFile(name string) (string, error) {
	path, err := xdg.DataFile(filepath.Join("fmu", name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve data path: %w", err)
	}
	return path, nil
}

// Load loads and validates the configuration from path. A missing file is an
// error instructing the user to run `fmu configure` first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s does not exist, run 'fmu configure' to create it", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if missing := cfg.placeholders(); len(missing) > 0 {
		return nil, fmt.Errorf("incomplete fields in %s: %v", path, missing)
	}

	// Relative manifest paths are anchored at the config file, so the pair
	// can be moved around together.
	if !filepath.IsAbs(cfg.ModPacksPath) {
		cfg.ModPacksPath = filepath.Join(filepath.Dir(path), cfg.ModPacksPath)
	}

	return &cfg, nil
}

// Save writes the configuration to path, tab-indented like the manifest
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// placeholders lists the config fields still carrying a "<FILL IN" value
func (c *Config) placeholders() []string {
	var missing []string
	for field, value := range map[string]string{
		"mods_api_url":          c.ModsAPIURL,
		"mod_packs_path":        c.ModPacksPath,
		"mods_dir":              c.ModsDir,
		"factorio_version_file": c.FactorioVersionFile,
		"username":              c.Username,
		"token":                 c.Token,
	} {
		if len(value) >= len(placeholderPrefix) && value[:len(placeholderPrefix)] == placeholderPrefix {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}
