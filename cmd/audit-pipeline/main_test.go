package main

import (
	"flag"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("audit-pipeline", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-transcripts", "exports/march.csv",
		"-base-dir", "out/march/",
		"-model", "gpt-4o-mini",
		"-lookahead", "4",
		"-concurrency", "6",
		"-timeout", "3m",
		"-threshold", "0.85",
		"-from-stage", "retrieve",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.BaseDir != filepath.FromSlash("out/march") {
		t.Fatalf("BaseDir=%q", cfg.BaseDir)
	}
	if cfg.FromStage != "retrieve" || cfg.Lookahead != 4 || cfg.Concurrency != 6 || cfg.Timeout != 3*time.Minute || cfg.Threshold != 0.85 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "default", mutate: func(*Config) {}, ok: true},
		{name: "both_stage_flags", mutate: func(c *Config) { c.FromStage, c.OnlyStage = "judge", "report" }},
		{name: "unknown_stage", mutate: func(c *Config) { c.OnlyStage = "summarize" }},
		{name: "stage_case_insensitive", mutate: func(c *Config) { c.OnlyStage = " Judge " }, ok: true},
		{name: "negative_lookahead", mutate: func(c *Config) { c.Lookahead = -1 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tc.ok {
				t.Fatalf("err=%v ok=%v", err, tc.ok)
			}
		})
	}
}

func TestStagesFrom(t *testing.T) {
	t.Parallel()

	if got := stagesFrom(allStages, "Judge"); !reflect.DeepEqual(got, []string{"judge", "report"}) {
		t.Fatalf("got=%v", got)
	}
	if got := stagesFrom(allStages, "nope"); !reflect.DeepEqual(got, allStages) {
		t.Fatalf("got=%v", got)
	}
}

func TestStageArgs(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.ConfigPath = "audit.yaml"
	cfg.StorePath = "runs.db"
	cfg.MetricsDir = "metrics"
	cfg.Overwrite = true
	p := newPaths("base")

	judge := strings.Join(stageArgs(cfg, p, "judge"), " ")
	for _, want := range []string{
		"run ./cmd/compliance-judge",
		"-in " + filepath.Join("base", "retrieval.csv"),
		"-out " + filepath.Join("base", "judged.json"),
		"-timeout 10m0s",
		"-metrics-out " + filepath.Join("metrics", "compliance_judge.prom"),
		"-config audit.yaml",
		"-overwrite",
	} {
		if !strings.Contains(judge, want) {
			t.Fatalf("judge args %q missing %q", judge, want)
		}
	}
	if strings.Contains(judge, "-model") {
		t.Fatalf("judge args %q should not pass an empty -model", judge)
	}

	report := strings.Join(stageArgs(cfg, p, "report"), " ")
	for _, want := range []string{"-threshold 0.9", "-store runs.db", "-source transcripts.csv", "-summary-out " + filepath.Join("base", "summary.json")} {
		if !strings.Contains(report, want) {
			t.Fatalf("report args %q missing %q", report, want)
		}
	}

	stitch := stageArgs(cfg, p, "stitch")
	for _, a := range stitch {
		if a == "-lookahead" {
			t.Fatalf("stitch args %q should defer lookahead to config", stitch)
		}
	}

	if got := p.output("retrieve"); got != filepath.Join("base", "retrieval.csv") {
		t.Fatalf("output(retrieve)=%q", got)
	}
}
