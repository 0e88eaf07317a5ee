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
	"github.com/theimaginaryfoundation/handoff-audit/audit/cache"
	"github.com/theimaginaryfoundation/handoff-audit/audit/config"
	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
	"github.com/theimaginaryfoundation/handoff-audit/audit/logging"
	"github.com/theimaginaryfoundation/handoff-audit/audit/metrics"
	"github.com/theimaginaryfoundation/handoff-audit/audit/retrieval"
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
	if cfg.BaseURL != "" {
		svc.R2R.BaseURL = cfg.BaseURL
	}
	if cfg.DocumentID != "" {
		svc.R2R.DocumentID = cfg.DocumentID
	}
	if err := svc.RequireRetrieval(); err != nil {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := retrieval.NewClient(svc.R2R.DocumentID,
		retrieval.WithBaseURL(svc.R2R.BaseURL),
		retrieval.WithAPIKey(svc.R2R.APIKey),
		retrieval.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	var retriever audit.Retriever = client
	if svc.Redis.Addr != "" && !cfg.NoCache {
		rc, err := cache.NewRedisCache(ctx, svc.Redis.Addr, svc.Redis.Password, svc.Redis.DB, svc.R2R.DocumentID, svc.Redis.TTL, logger)
		if err != nil {
			logger.Warn("retrieval cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer func() { _ = rc.Close() }()
			retriever = audit.CachedRetriever{Next: client, Cache: rc, Logger: logger}
		}
	}

	m := metrics.New()
	res, err := run(ctx, cfg, retriever, logger, m)
	if cfg.MetricsOut != "" {
		if werr := m.WriteTextfile(cfg.MetricsOut); werr != nil {
			logger.Warn("failed writing metrics", zap.String("path", cfg.MetricsOut), zap.Error(werr))
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "units_read=%d retrieved=%d retrieval_failures=%d document_id=%s out=%s elapsed=%s\n",
		res.Units, res.Units-res.Failures, res.Failures, svc.R2R.DocumentID, cfg.OutPath, res.Elapsed.Round(time.Millisecond))
}

type runResult struct {
	Units    int
	Failures int
	Elapsed  time.Duration
}

func run(ctx context.Context, cfg Config, r audit.Retriever, logger *zap.Logger, rec audit.Recorder) (runResult, error) {
	if err := fileutils.CheckOverwrite(cfg.OutPath, cfg.Overwrite); err != nil {
		return runResult{}, err
	}
	units, err := audit.ReadCSVFile(cfg.InPath, audit.ReadUnitsCSV)
	if err != nil {
		return runResult{}, fmt.Errorf("read units: %w", err)
	}

	start := time.Now()
	logger.Info("retrieving policies", zap.Int("units", len(units)), zap.Int("concurrency", cfg.Concurrency))
	results := audit.RetrieveUnits(ctx, r, units, retrieval.BuildQuery,
		audit.PoolOptions{Concurrency: cfg.Concurrency, Timeout: cfg.Timeout}, logger, rec)

	res := runResult{Units: len(results), Elapsed: time.Since(start)}
	for _, rr := range results {
		if rr.Error != "" {
			res.Failures++
		}
	}

	// Results are written even when interrupted so that completed retrievals are kept.
	if err := audit.WriteCSVFileAtomic(cfg.OutPath, cfg.Overwrite, func(w io.Writer) error {
		return audit.WriteRetrievalCSV(w, results)
	}); err != nil {
		return res, fmt.Errorf("write retrieval results: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("retrieval interrupted: %w", err)
	}
	return res, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the reviewable units CSV")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the retrieval results CSV")
	fs.StringVar(&cfg.BaseURL, "r2r-url", "", "Retrieval service base URL (overrides r2r.base_url)")
	fs.StringVar(&cfg.DocumentID, "document-id", "", "Policy document id to search (overrides r2r.document_id)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent retrieval calls")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-unit retrieval timeout including retries (0 disables)")
	fs.BoolVar(&cfg.NoCache, "no-cache", cfg.NoCache, "Skip the Redis answer cache even when redis.addr is set")
	fs.StringVar(&cfg.MetricsOut, "metrics-out", "", "Optional path for a Prometheus textfile with batch metrics")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional service config file (YAML)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level override (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format override (console|json)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite the output file if it exists")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	if cfg.MetricsOut != "" {
		cfg.MetricsOut = filepath.Clean(cfg.MetricsOut)
	}
	return cfg, nil
}
