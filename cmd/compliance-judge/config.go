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

	// Model, when set, overrides openai.model.
	Model        string
	PromptFile   string
	NoStructured bool
	Concurrency  int
	Timeout      time.Duration
	MetricsOut   string
	Pretty       bool
	Overwrite    bool
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
		InPath:      filepath.FromSlash("data/audit/retrieval.csv"),
		OutPath:     filepath.FromSlash("data/audit/judged.json"),
		Concurrency: 4,
		Timeout:     10 * time.Minute,
		Pretty:      true,
	}
}
