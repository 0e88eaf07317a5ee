package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
	"github.com/theimaginaryfoundation/handoff-audit/audit/config"
	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
	"github.com/theimaginaryfoundation/handoff-audit/audit/logging"
	"github.com/theimaginaryfoundation/handoff-audit/audit/metrics"
	"github.com/theimaginaryfoundation/handoff-audit/audit/provider"
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
	if cfg.Model != "" {
		svc.OpenAI.Model = cfg.Model
	}
	if cfg.NoStructured {
		svc.OpenAI.StructuredOutput = false
	}
	if err := svc.RequireJudge(); err != nil {
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

	opts := []provider.JudgeOption{
		provider.WithStructuredOutput(svc.OpenAI.StructuredOutput),
		provider.WithJudgeLogger(logger),
	}
	if cfg.PromptFile != "" {
		b, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("read -prompt-file: %w", err).Error())
			os.Exit(2)
		}
		opts = append(opts, provider.WithPrompt(strings.TrimSpace(string(b))))
	}

	client := provider.NewOpenAIClient(svc.OpenAI.APIKey, svc.OpenAI.BaseURL)
	judge, err := provider.NewOpenAIJudge(&client, svc.OpenAI.Model, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	res, err := run(ctx, cfg, judge, logger, m)
	if cfg.MetricsOut != "" {
		if werr := m.WriteTextfile(cfg.MetricsOut); werr != nil {
			logger.Warn("failed writing metrics", zap.String("path", cfg.MetricsOut), zap.Error(werr))
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "units_read=%d judged=%d violations=%d failures=%d model=%s out=%s elapsed=%s\n",
		res.Units, res.Judged, res.Violations, res.Units-res.Judged, svc.OpenAI.Model, cfg.OutPath, res.Elapsed.Round(time.Millisecond))
}

type runResult struct {
	Units      int
	Judged     int
	Violations int
	Elapsed    time.Duration
}

func run(ctx context.Context, cfg Config, judge audit.Judge, logger *zap.Logger, rec audit.Recorder) (runResult, error) {
	if err := fileutils.CheckOverwrite(cfg.OutPath, cfg.Overwrite); err != nil {
		return runResult{}, err
	}
	results, err := audit.ReadCSVFile(cfg.InPath, audit.ReadRetrievalCSV)
	if err != nil {
		return runResult{}, fmt.Errorf("read retrieval results: %w", err)
	}

	start := time.Now()
	logger.Info("judging units", zap.Int("units", len(results)), zap.Int("concurrency", cfg.Concurrency))
	judged := audit.JudgeUnits(ctx, judge, results,
		audit.PoolOptions{Concurrency: cfg.Concurrency, Timeout: cfg.Timeout}, logger, rec)

	res := runResult{Units: len(judged), Elapsed: time.Since(start)}
	for _, j := range judged {
		v, failure, err := audit.DecodeJudgedOutput(j.Output)
		if err != nil || failure != nil {
			continue
		}
		res.Judged++
		if v.PolicyViolated {
			res.Violations++
		}
	}

	if err := fileutils.WriteJSONFileAtomic(cfg.OutPath, judged, cfg.Pretty); err != nil {
		return res, fmt.Errorf("write judged output: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("judging interrupted: %w", err)
	}
	return res, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to the retrieval results CSV")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the judged JSON")
	fs.StringVar(&cfg.Model, "model", "", "OpenAI model for the compliance judge (overrides openai.model; uses OPENAI_API_KEY)")
	fs.StringVar(&cfg.PromptFile, "prompt-file", "", "Optional path to a file replacing the built-in judge system prompt")
	fs.BoolVar(&cfg.NoStructured, "no-structured-output", cfg.NoStructured, "Disable the strict JSON schema response format")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent judge calls")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-unit judge timeout including retries (0 disables)")
	fs.StringVar(&cfg.MetricsOut, "metrics-out", "", "Optional path for a Prometheus textfile with batch metrics")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional service config file (YAML)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level override (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format override (console|json)")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print the judged JSON")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite the output file if it exists")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	if cfg.PromptFile != "" {
		cfg.PromptFile = filepath.Clean(cfg.PromptFile)
	}
	if cfg.MetricsOut != "" {
		cfg.MetricsOut = filepath.Clean(cfg.MetricsOut)
	}
	return cfg, nil
}
