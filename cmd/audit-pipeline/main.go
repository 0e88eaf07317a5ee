package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stages := allStages
	if cfg.OnlyStage != "" {
		stages = []string{strings.ToLower(strings.TrimSpace(cfg.OnlyStage))}
	} else if cfg.FromStage != "" {
		stages = stagesFrom(stages, cfg.FromStage)
	}

	p := newPaths(cfg.BaseDir)
	start := time.Now()
	for _, stage := range stages {
		if !cfg.Overwrite && fileutils.FileExists(p.output(stage)) {
			fmt.Fprintf(os.Stdout, "skip %s: %s already exists\n", stage, p.output(stage))
			continue
		}
		if err := runGo(ctx, stageArgs(cfg, p, stage)...); err != nil {
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stdout, "stages=%s report=%s summary=%s elapsed=%s\n",
		strings.Join(stages, ","), p.report, p.summary, time.Since(start).Round(time.Millisecond))
}

type paths struct {
	segments  string
	units     string
	retrieval string
	judged    string
	report    string
	summary   string
}

func newPaths(base string) paths {
	base = filepath.Clean(base)
	return paths{
		segments:  filepath.Join(base, "segments.csv"),
		units:     filepath.Join(base, "units.csv"),
		retrieval: filepath.Join(base, "retrieval.csv"),
		judged:    filepath.Join(base, "judged.json"),
		report:    filepath.Join(base, "report.csv"),
		summary:   filepath.Join(base, "summary.json"),
	}
}

func (p paths) output(stage string) string {
	switch stage {
	case "segment":
		return p.segments
	case "stitch":
		return p.units
	case "retrieve":
		return p.retrieval
	case "judge":
		return p.judged
	default:
		return p.report
	}
}

// stageArgs builds the `go run` arguments for one stage.
func stageArgs(cfg Config, p paths, stage string) []string {
	var args []string
	switch stage {
	case "segment":
		args = []string{"run", "./cmd/transcript-segmenter", "-in", cfg.TranscriptsPath, "-out", p.segments}
	case "stitch":
		args = []string{"run", "./cmd/handoff-stitcher", "-in", p.segments, "-out", p.units}
		if cfg.Lookahead > 0 {
			args = append(args, "-lookahead", strconv.Itoa(cfg.Lookahead))
		}
	case "retrieve":
		args = []string{
			"run", "./cmd/policy-retriever",
			"-in", p.units,
			"-out", p.retrieval,
			"-concurrency", strconv.Itoa(cfg.Concurrency),
			"-timeout", cfg.Timeout.String(),
		}
		if cfg.MetricsDir != "" {
			args = append(args, "-metrics-out", filepath.Join(cfg.MetricsDir, "policy_retriever.prom"))
		}
	case "judge":
		args = []string{
			"run", "./cmd/compliance-judge",
			"-in", p.retrieval,
			"-out", p.judged,
			"-concurrency", strconv.Itoa(cfg.Concurrency),
			"-timeout", cfg.Timeout.String(),
		}
		if cfg.Model != "" {
			args = append(args, "-model", cfg.Model)
		}
		if cfg.MetricsDir != "" {
			args = append(args, "-metrics-out", filepath.Join(cfg.MetricsDir, "compliance_judge.prom"))
		}
	case "report":
		args = []string{
			"run", "./cmd/audit-report",
			"-retrieval", p.retrieval,
			"-judged", p.judged,
			"-out", p.report,
			"-summary-out", p.summary,
			"-threshold", strconv.FormatFloat(cfg.Threshold, 'f', -1, 64),
			"-source", filepath.Base(cfg.TranscriptsPath),
		}
		if cfg.StorePath != "" {
			args = append(args, "-store", cfg.StorePath)
		}
	}

	if cfg.ConfigPath != "" {
		args = append(args, "-config", cfg.ConfigPath)
	}
	if cfg.LogLevel != "" {
		args = append(args, "-log-level", cfg.LogLevel)
	}
	if cfg.LogFormat != "" {
		args = append(args, "-log-format", cfg.LogFormat)
	}
	if cfg.Overwrite {
		args = append(args, "-overwrite")
	}
	return args
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.TranscriptsPath, "transcripts", cfg.TranscriptsPath, "Path to the raw transcript export CSV")
	fs.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Directory for intermediate artifacts and the final report")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional service config file (YAML), passed to every stage")

	fs.StringVar(&cfg.Model, "model", "", "OpenAI model for the compliance judge (overrides openai.model)")
	fs.IntVar(&cfg.Lookahead, "lookahead", cfg.Lookahead, "Messages taken from the segment after a bot hand-off (0 = config default)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent retrieval and judge calls")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-unit timeout for retrieval and judge calls")
	fs.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "Relevance score a policy must exceed to be listed as high relevance")
	fs.StringVar(&cfg.StorePath, "store", "", "Optional SQLite verdict store path")
	fs.StringVar(&cfg.MetricsDir, "metrics-dir", "", "Optional directory for per-stage Prometheus textfiles")

	fs.StringVar(&cfg.FromStage, "from-stage", "", "Start at stage: "+strings.Join(allStages, "|"))
	fs.StringVar(&cfg.OnlyStage, "only-stage", "", "Run only one stage: "+strings.Join(allStages, "|"))

	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level passed to every stage")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format passed to every stage")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Rerun stages whose outputs already exist")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.TranscriptsPath = filepath.Clean(cfg.TranscriptsPath)
	cfg.BaseDir = filepath.Clean(cfg.BaseDir)
	return cfg, nil
}

func runGo(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "command failed:", "go "+strings.Join(args, " "))
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return err
	}
	fmt.Fprintln(os.Stdout, "ok:", "go "+strings.Join(args, " "), "(", time.Since(start).Round(time.Millisecond).String()+")")
	return nil
}

func stagesFrom(stages []string, from string) []string {
	from = strings.ToLower(strings.TrimSpace(from))
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}
