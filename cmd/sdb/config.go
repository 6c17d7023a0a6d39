package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// config is the optional ~/.sdbrc.yaml front-end preference file: command
// aliases and a startup banner toggle. The core has no concept of this;
// it lives entirely in cmd/sdb.
type config struct {
	Aliases    map[string]string `yaml:"aliases"`
	ShowBanner bool              `yaml:"show_banner"`
}

func defaultConfig() config {
	return config{
		Aliases: map[string]string{
			"c": "continue",
			"r": "register",
			"b": "breakpoint",
			"s": "step",
		},
		ShowBanner: true,
	}
}

// loadConfig reads ~/.sdbrc.yaml if present, falling back to
// defaultConfig when the file is missing. A malformed file is reported
// rather than silently ignored.
func loadConfig() (config, error) {
	cfg := defaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Join(home, ".sdbrc.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, err
	}

	if cfg.Aliases == nil {
		cfg.Aliases = defaultConfig().Aliases
	}

	return cfg, nil
}

func (cfg config) resolveAlias(name string) string {
	if target, ok := cfg.Aliases[name]; ok {
		return target
	}
	return name
}
