package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
	"github.com/theimaginaryfoundation/handoff-audit/audit/store"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("audit-report", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-retrieval", "r.csv",
		"-judged", "j.json",
		"-out", "report.csv",
		"-summary-out", "",
		"-threshold", "0.8",
		"-store", "runs/./audit.db",
		"-source", "march-export",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Threshold != 0.8 || cfg.SummaryPath != "" || cfg.Source != "march-export" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.StorePath != filepath.FromSlash("runs/audit.db") {
		t.Fatalf("StorePath=%q", cfg.StorePath)
	}
}

func TestConfigValidate_Threshold(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Threshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected threshold error")
	}
}

func writeInputs(t *testing.T, dir string) Config {
	t.Helper()

	unit := func(conv string, n int) audit.ReviewableUnit {
		return audit.ReviewableUnit{ConversationID: conv, UnitNumber: n, AgentIdentity: audit.BotIdentity, Messages: []string{"Bot: hi", "Consumer: help"}}
	}
	results := []audit.RetrievalResult{
		{Unit: unit("c2", 1), Answer: `{"policies":[{"title":"Refunds","relevance_score":0.95},{"title":"Greeting","relevance_score":0.4}]}`},
		{Unit: unit("c1", 1), Answer: `{"policies":[{"title":"Tone","relevance_score":0.91}]}`},
		{Unit: unit("c1", 2), Error: "audit: RETRIEVAL_FAILURE (retrieval call failed): 503"},
	}
	judged := []audit.JudgedUnit{
		{ConversationID: "c2", UnitNumber: 1, Output: json.RawMessage(`{"conversation_id":"c2","policy_violated":true,"policies_violated":[{"title":"Refunds","description":"promised"}],"violation_summary":"s"}`)},
		{ConversationID: "c1", UnitNumber: 2, Output: json.RawMessage(`{"kind":"RETRIEVAL_FAILURE","error":"Error: 503"}`)},
	}

	cfg := defaultConfig()
	cfg.RetrievalPath = filepath.Join(dir, "retrieval.csv")
	cfg.JudgedPath = filepath.Join(dir, "judged.json")
	cfg.OutPath = filepath.Join(dir, "report.csv")
	cfg.SummaryPath = filepath.Join(dir, "summary.json")

	if err := audit.WriteCSVFileAtomic(cfg.RetrievalPath, false, func(w io.Writer) error {
		return audit.WriteRetrievalCSV(w, results)
	}); err != nil {
		t.Fatalf("write retrieval: %v", err)
	}
	if err := fileutils.WriteJSONFileAtomic(cfg.JudgedPath, judged, false); err != nil {
		t.Fatalf("write judged: %v", err)
	}
	return cfg
}

func TestRun_WritesReportSummaryAndStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := writeInputs(t, dir)
	cfg.StorePath = filepath.Join(dir, "audit.db")
	cfg.Source = "test"

	sum, err := run(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.RunID == "" || sum.Units != 3 || sum.Violations != 1 || sum.RetrievalFailures != 1 || sum.MissingVerdicts != 1 {
		t.Fatalf("sum=%+v", sum)
	}

	f, err := os.Open(cfg.OutPath)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(recs) != 4 || strings.Join(recs[0], ",") != "conv_id,unit,Messages,policies_related,policies_violated,policies_high_relevance" {
		t.Fatalf("report=%q", recs)
	}
	if recs[1][0] != "c1" || recs[1][1] != "1" || recs[1][5] != "Tone" {
		t.Fatalf("row 1=%q", recs[1])
	}
	if recs[3][0] != "c2" || recs[3][5] != "Refunds" || !strings.Contains(recs[3][4], "\"policy_violated\": true") {
		t.Fatalf("row 3=%q", recs[3])
	}

	b, err := os.ReadFile(cfg.SummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var onDisk audit.Summary
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if onDisk != sum {
		t.Fatalf("summary on disk=%+v, want %+v", onDisk, sum)
	}

	st, err := store.Open(context.Background(), cfg.StorePath, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	saved, units, err := st.LoadRun(context.Background(), sum.RunID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if saved.Source != "test" || saved.Summary != sum || len(units) != 2 {
		t.Fatalf("saved=%+v units=%d", saved, len(units))
	}
}

func TestRun_RefusesExistingSummary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := writeInputs(t, dir)
	if err := os.WriteFile(cfg.SummaryPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error for existing summary")
	}
	if fileutils.FileExists(cfg.OutPath) {
		t.Fatalf("report written despite refusal")
	}
}
