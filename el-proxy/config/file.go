package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LoadFile decodes a TOML or YAML file, chosen by extension, on top of cfg.
// Keys that are absent from the file keep their current value. Unknown keys are an error.
func LoadFile(fs afero.Fs, path string, cfg *Config) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.NewDecoder(f).Decode(cfg)
		if err != nil {
			return fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys in TOML config %s: %v", path, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("failed to decode YAML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q, expected .toml, .yaml or .yml", ext)
	}
	return nil
}
