package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InPath     string
	OutPath    string
	ConfigPath string
	LogLevel   string
	LogFormat  string

	// Lookahead of 0 defers to handoff.lookahead from the service config.
	Lookahead int
	Overwrite bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.Lookahead < 0 {
		return errors.New("lookahead must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:  filepath.FromSlash("data/audit/segments.csv"),
		OutPath: filepath.FromSlash("data/audit/units.csv"),
	}
}
