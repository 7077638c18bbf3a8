package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema pins the shape of config.json before any field is used
const configSchema = `{
	"type": "object",
	"required": ["mods_api_url", "mod_packs_path", "mods_dir", "factorio_version_file", "username", "token"],
	"properties": {
		"mods_api_url": {"type": "string", "minLength": 1},
		"mod_packs_path": {"type": "string", "minLength": 1},
		"mods_dir": {"type": "string", "minLength": 1},
		"factorio_version_file": {"type": "string", "minLength": 1},
		"username": {"type": "string", "minLength": 1},
		"token": {"type": "string", "minLength": 1}
	}
}`

// validateSchema checks raw config bytes against the config schema
func validateSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
		return fmt.Errorf("failed to add config schema: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	var value any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidatePaths checks that every path the pipeline touches exists and has
// the expected shape. All problems are reported at once.
func (c *Config) ValidatePaths() error {
	var errs []string

	if info, err := os.Stat(c.ModPacksPath); err != nil || info.IsDir() {
		errs = append(errs, fmt.Sprintf("mod_packs_path: file does not exist: %s", c.ModPacksPath))
	} else if err := checkJSONArray(c.ModPacksPath); err != nil {
		errs = append(errs, fmt.Sprintf("mod_packs_path: %v", err))
	}

	if info, err := os.Stat(c.ModsDir); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Sprintf("mods_dir: directory does not exist: %s", c.ModsDir))
	}

	if info, err := os.Stat(c.FactorioVersionFile); err != nil || info.IsDir() {
		errs = append(errs, fmt.Sprintf("factorio_version_file: file does not exist: %s", c.FactorioVersionFile))
	} else if err := checkVersionFile(c.FactorioVersionFile); err != nil {
		errs = append(errs, fmt.Sprintf("factorio_version_file: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}

	return nil
}

func checkJSONArray(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read: %w", err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := value.([]any); !ok {
		return fmt.Errorf("expected JSON array, got %T", value)
	}

	return nil
}

func checkVersionFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read: %w", err)
	}

	var info struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if info.Version == "" {
		return fmt.Errorf("missing 'version' field")
	}
	if len(strings.Split(info.Version, ".")) < 2 {
		return fmt.Errorf("invalid version format: %s", info.Version)
	}

	return nil
}
