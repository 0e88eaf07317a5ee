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
	Overwrite  bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if filepath.Clean(c.InPath) == filepath.Clean(c.OutPath) {
		return errors.New("-in and -out must differ")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:  filepath.FromSlash("data/transcripts.csv"),
		OutPath: filepath.FromSlash("data/audit/segments.csv"),
	}
}
