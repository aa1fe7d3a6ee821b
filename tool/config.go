package tool

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file searched for when no config path is given.
const ConfigFileName = "osinthub.yaml"

// Config is the on-disk form of the tool table.
type Config struct {
	// HomeDir is the directory that relative tool directories are resolved against.
	HomeDir string       `yaml:"home_dir"`
	Tools   []Descriptor `yaml:"tools"`
}

// Load builds the tool table.
// With an empty path, the stock tools rooted at homeDir are used.
// Otherwise the YAML file at path is loaded, and a home_dir in the file takes precedence over homeDir.
func Load(path, homeDir string) (*Table, error) {
	if path == "" {
		return NewTable(Defaults(homeDir))
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tool config %s: %w", path, err)
	}
	if cfg.HomeDir == "" {
		cfg.HomeDir = homeDir
	}
	if len(cfg.Tools) == 0 {
		cfg.Tools = Defaults(cfg.HomeDir)
	}
	for i := range cfg.Tools {
		d := &cfg.Tools[i]
		if d.Dir == "" {
			d.Dir = cfg.HomeDir
		} else if !filepath.IsAbs(d.Dir) {
			d.Dir = filepath.Join(cfg.HomeDir, d.Dir)
		}
	}
	t, err := NewTable(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("validating tool config %s: %w", path, err)
	}
	return t, nil
}

func loadConfigFromFile(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
