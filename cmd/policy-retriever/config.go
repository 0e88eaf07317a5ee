package main

import (
	"errors"
	"path/filepath"
	"time"
)

type Config struct {
	InPath     string
	OutPath    string
	ConfigPath string
	LogLevel   string
	LogFormat  string

	// BaseURL and DocumentID override r2r.base_url and r2r.document_id when set.
	BaseURL    string
	DocumentID string

	Concurrency int
	Timeout     time.Duration
	NoCache     bool
	MetricsOut  string
	Overwrite   bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:      filepath.FromSlash("data/audit/units.csv"),
		OutPath:     filepath.FromSlash("data/audit/retrieval.csv"),
		Concurrency: 4,
		Timeout:     2 * time.Minute,
	}
}
