package main

import (
	"errors"
	"path/filepath"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
)

type Config struct {
	RetrievalPath string
	JudgedPath    string
	OutPath       string
	SummaryPath   string
	ConfigPath    string
	LogLevel      string
	LogFormat     string

	Threshold float64

	// StorePath, when set, overrides store.path. An empty result skips the verdict store.
	StorePath string
	Source    string

	Pretty    bool
	Overwrite bool
}

func (c Config) Validate() error {
	if c.RetrievalPath == "" {
		return errors.New("missing -retrieval")
	}
	if c.JudgedPath == "" {
		return errors.New("missing -judged")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.New("threshold must be within [0, 1]")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		RetrievalPath: filepath.FromSlash("data/audit/retrieval.csv"),
		JudgedPath:    filepath.FromSlash("data/audit/judged.json"),
		OutPath:       filepath.FromSlash("data/audit/report.csv"),
		SummaryPath:   filepath.FromSlash("data/audit/summary.json"),
		Threshold:     audit.HighRelevanceThreshold,
		Pretty:        true,
	}
}
