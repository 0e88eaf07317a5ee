package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY",
		EnvPrefix + "_OPENAI_API_KEY",
		EnvPrefix + "_R2R_BASE_URL",
		EnvPrefix + "_R2R_DOCUMENT_ID",
		EnvPrefix + "_HANDOFF_LOOKAHEAD",
		EnvPrefix + "_REDIS_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-4o" || !cfg.OpenAI.StructuredOutput {
		t.Fatalf("OpenAI=%+v", cfg.OpenAI)
	}
	if cfg.R2R.BaseURL != "http://localhost:7272" || cfg.R2R.DocumentID != DefaultDocumentID {
		t.Fatalf("R2R=%+v", cfg.R2R)
	}
	if cfg.Handoff.Lookahead != audit.DefaultLookahead {
		t.Fatalf("Lookahead=%d", cfg.Handoff.Lookahead)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Fatalf("Redis.TTL=%v", cfg.Redis.TTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := cfg.RequireRetrieval(); err != nil {
		t.Fatalf("RequireRetrieval: %v", err)
	}
	if err := cfg.RequireJudge(); !audit.IsKind(err, audit.ErrorConfiguration) {
		t.Fatalf("RequireJudge err=%v, want CONFIGURATION_ERROR", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-plain")
	t.Setenv(EnvPrefix+"_R2R_BASE_URL", "http://r2r:7272")
	t.Setenv(EnvPrefix+"_HANDOFF_LOOKAHEAD", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-plain" {
		t.Fatalf("APIKey=%q", cfg.OpenAI.APIKey)
	}
	if cfg.R2R.BaseURL != "http://r2r:7272" || cfg.Handoff.Lookahead != 5 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.RequireJudge(); err != nil {
		t.Fatalf("RequireJudge: %v", err)
	}

	t.Setenv(EnvPrefix+"_OPENAI_API_KEY", "sk-prefixed")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-prefixed" {
		t.Fatalf("APIKey=%q, want prefixed value", cfg.OpenAI.APIKey)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	p := filepath.Join(t.TempDir(), "audit.yaml")
	yaml := "r2r:\n  base_url: \"\"\n  document_id: doc-1\nhandoff:\n  lookahead: 0\nredis:\n  addr: localhost:6379\n  ttl: 1h\n"
	if err := os.WriteFile(p, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.R2R.DocumentID != "doc-1" || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL != time.Hour {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.RequireRetrieval(); !audit.IsKind(err, audit.ErrorConfiguration) {
		t.Fatalf("RequireRetrieval err=%v, want CONFIGURATION_ERROR", err)
	}
	if err := cfg.Validate(); !audit.IsKind(err, audit.ErrorConfiguration) {
		t.Fatalf("Validate err=%v, want CONFIGURATION_ERROR", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
