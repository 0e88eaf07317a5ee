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

	res, err := run(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "rows_read=%d rows_rejected=%d duplicates=%d conversations=%d segments_written=%d out=%s\n",
		res.RowsRead, res.Rejected, res.Duplicates, res.Conversations, res.Segments, cfg.OutPath)
}

type runResult struct {
	RowsRead      int
	Rejected      int
	Duplicates    int
	Conversations int
	Segments      int
}

func run(cfg Config, logger *zap.Logger) (runResult, error) {
	msgs, rejected, err := audit.ReadTranscriptFile(cfg.InPath)
	if err != nil {
		return runResult{}, err
	}

	rowsRead := len(msgs) + len(rejected)

	norm := audit.Normalize(msgs)
	rejected = append(rejected, norm.Rejected...)
	for _, r := range rejected {
		logger.Warn("rejected record",
			zap.Int("row", r.Row),
			zap.String("conversation_id", r.ConversationID),
			zap.Error(r.Err),
		)
	}

	segments := audit.SegmentConversations(norm.Conversations)
	if err := audit.WriteCSVFileAtomic(cfg.OutPath, cfg.Overwrite, func(w io.Writer) error {
		return audit.WriteSegmentsCSV(w, segments)
	}); err != nil {
		return runResult{}, fmt.Errorf("write segments: %w", err)
	}

	logger.Info("segmentation complete",
		zap.Int("conversations", len(norm.Conversations)),
		zap.Int("segments", len(segments)),
		zap.Int("duplicates", norm.Duplicates),
	)
	return runResult{
		RowsRead:      rowsRead,
		Rejected:      len(rejected),
		Duplicates:    norm.Duplicates,
		Conversations: len(norm.Conversations),
		Segments:      len(segments),
	}, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the raw transcript export CSV")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the segments CSV")
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
