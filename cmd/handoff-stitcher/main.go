package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
	"github.com/theimaginaryfoundation/handoff-audit/audit/config"
	"github.com/theimaginaryfoundation/handoff-audit/audit/logging"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	svc, err := config.Load(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if cfg.Lookahead > 0 {
		svc.Handoff.Lookahead = cfg.Lookahead
	}
	if err := svc.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if cfg.LogLevel != "" {
		svc.Logging.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		svc.Logging.Format = cfg.LogFormat
	}
	logger, err := logging.New(svc.Logging.Level, svc.Logging.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	segments, units, err := run(cfg.InPath, cfg.OutPath, svc.Handoff.Lookahead, cfg.Overwrite, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "segments_read=%d units_written=%d lookahead=%d out=%s\n", segments, units, svc.Handoff.Lookahead, cfg.OutPath)
}

func run(inPath, outPath string, lookahead int, overwrite bool, logger *zap.Logger) (segments int, units int, err error) {
	segs, err := audit.ReadCSVFile(inPath, audit.ReadSegmentsCSV)
	if err != nil {
		return 0, 0, fmt.Errorf("read segments: %w", err)
	}

	stitched := audit.StitchAll(segs, lookahead)
	if err := audit.WriteCSVFileAtomic(outPath, overwrite, func(w io.Writer) error {
		return audit.WriteUnitsCSV(w, stitched)
	}); err != nil {
		return 0, 0, fmt.Errorf("write units: %w", err)
	}

	logger.Info("stitching complete", zap.Int("segments", len(segs)), zap.Int("units", len(stitched)))
	return len(segs), len(stitched), nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the segments CSV")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the reviewable units CSV")
	fs.IntVar(&cfg.Lookahead, "lookahead", cfg.Lookahead, "Messages taken from the segment after a bot hand-off (0 = handoff.lookahead from config)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional service config file (YAML)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level override (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format override (console|json)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite the output file if it exists")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	return cfg, nil
}
