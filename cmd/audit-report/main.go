package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
	"github.com/theimaginaryfoundation/handoff-audit/audit/config"
	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
	"github.com/theimaginaryfoundation/handoff-audit/audit/logging"
	"github.com/theimaginaryfoundation/handoff-audit/audit/store"
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
	if cfg.StorePath == "" {
		cfg.StorePath = svc.Store.Path
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := run(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "run_id=%s units=%d judged=%d violations=%d failures=%d report=%s summary=%s\n",
		sum.RunID, sum.Units, sum.Judged, sum.Violations, sum.Failures(), cfg.OutPath, cfg.SummaryPath)
}

func run(ctx context.Context, cfg Config, logger *zap.Logger) (audit.Summary, error) {
	if err := fileutils.CheckOverwrite(cfg.OutPath, cfg.Overwrite); err != nil {
		return audit.Summary{}, err
	}
	if cfg.SummaryPath != "" {
		if err := fileutils.CheckOverwrite(cfg.SummaryPath, cfg.Overwrite); err != nil {
			return audit.Summary{}, err
		}
	}

	results, err := audit.ReadCSVFile(cfg.RetrievalPath, audit.ReadRetrievalCSV)
	if err != nil {
		return audit.Summary{}, fmt.Errorf("read retrieval results: %w", err)
	}
	judged, err := audit.ReadJudgedFile(cfg.JudgedPath)
	if err != nil {
		return audit.Summary{}, err
	}

	rows, sum := audit.BuildReport(results, judged, cfg.Threshold)
	sum.RunID = store.NewRunID()
	if sum.MissingVerdicts > 0 {
		logger.Warn("units without a judged entry", zap.Int("count", sum.MissingVerdicts))
	}

	if err := audit.WriteCSVFileAtomic(cfg.OutPath, true, func(w io.Writer) error {
		return audit.WriteReportCSV(w, rows)
	}); err != nil {
		return sum, fmt.Errorf("write report: %w", err)
	}
	if cfg.SummaryPath != "" {
		if err := fileutils.WriteJSONFileAtomic(cfg.SummaryPath, sum, cfg.Pretty); err != nil {
			return sum, fmt.Errorf("write summary: %w", err)
		}
	}

	if cfg.StorePath != "" {
		if err := saveRun(ctx, cfg, sum, judged, logger); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func saveRun(ctx context.Context, cfg Config, sum audit.Summary, judged []audit.JudgedUnit, logger *zap.Logger) error {
	st, err := store.Open(ctx, cfg.StorePath, logger)
	if err != nil {
		return fmt.Errorf("open verdict store: %w", err)
	}
	defer func() { _ = st.Close() }()

	r := store.Run{ID: sum.RunID, CreatedAt: time.Now(), Source: cfg.Source, Summary: sum}
	if err := st.SaveRun(ctx, r, judged); err != nil {
		return err
	}
	logger.Info("run recorded", zap.String("run_id", r.ID), zap.String("store", cfg.StorePath))
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.RetrievalPath, "retrieval", cfg.RetrievalPath, "Path to the retrieval results CSV")
	fs.StringVar(&cfg.JudgedPath, "judged", cfg.JudgedPath, "Path to the judged JSON")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the final report CSV")
	fs.StringVar(&cfg.SummaryPath, "summary-out", cfg.SummaryPath, "Output path for the batch summary JSON (empty disables)")
	fs.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "Relevance score a policy must exceed to be listed as high relevance")
	fs.StringVar(&cfg.StorePath, "store", "", "SQLite verdict store path (overrides store.path; empty disables)")
	fs.StringVar(&cfg.Source, "source", "", "Label recorded with the run in the verdict store, e.g. the export name")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional service config file (YAML)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level override (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format override (console|json)")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print the summary JSON")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite existing outputs")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.RetrievalPath = filepath.Clean(cfg.RetrievalPath)
	cfg.JudgedPath = filepath.Clean(cfg.JudgedPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	if cfg.SummaryPath != "" {
		cfg.SummaryPath = filepath.Clean(cfg.SummaryPath)
	}
	if cfg.StorePath != "" {
		cfg.StorePath = filepath.Clean(cfg.StorePath)
	}
	return cfg, nil
}
