package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileNames are searched in order by Find.
var FileNames = []string{"artifacts.yaml", "artifacts.yml", "artifacts.toml"}

// Load reads path over the defaults and validates the result. TOML is
// chosen by the .toml extension, YAML otherwise.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, err
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, NewParseError(path, err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, NewInvalidError(path, errs)
	}
	return cfg, nil
}

// Parse decodes data over the defaults. ext selects the format.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	var err error
	if strings.EqualFold(ext, ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find returns the first configuration file present in dir, or "".
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Resolve loads path when given, otherwise the first file Find reports in
// dir, otherwise the defaults.
func Resolve(path, dir string) (*Config, string, error) {
	if path == "" {
		path = Find(dir)
	}
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
