package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
)

var allStages = []string{"segment", "stitch", "retrieve", "judge", "report"}

type Config struct {
	TranscriptsPath string
	BaseDir         string
	ConfigPath      string

	Model       string
	Lookahead   int
	Concurrency int
	Timeout     time.Duration
	Threshold   float64
	StorePath   string
	MetricsDir  string

	FromStage string
	OnlyStage string

	LogLevel  string
	LogFormat string
	Overwrite bool
}

func (c Config) Validate() error {
	if c.TranscriptsPath == "" {
		return errors.New("missing -transcripts")
	}
	if c.BaseDir == "" {
		return errors.New("missing -base-dir")
	}
	if c.Lookahead < 0 {
		return errors.New("lookahead must be >= 0")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.New("threshold must be within [0, 1]")
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of -only-stage or -from-stage")
	}
	for _, s := range []string{c.OnlyStage, c.FromStage} {
		if s != "" && !knownStage(s) {
			return fmt.Errorf("unknown stage %q (want %s)", s, strings.Join(allStages, "|"))
		}
	}
	return nil
}

func knownStage(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range allStages {
		if st == s {
			return true
		}
	}
	return false
}

func defaultConfig() Config {
	return Config{
		TranscriptsPath: filepath.FromSlash("data/transcripts.csv"),
		BaseDir:         filepath.FromSlash("data/audit"),
		Concurrency:     4,
		Timeout:         10 * time.Minute,
		Threshold:       audit.HighRelevanceThreshold,
	}
}
