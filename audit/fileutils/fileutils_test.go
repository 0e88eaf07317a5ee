package fileutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSONFileAtomic_CreatesDirsAndTrailingNewline(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "out", "judged.json")
	if err := WriteJSONFileAtomic(p, map[string]int{"a": 1}, false); err != nil {
		t.Fatalf("WriteJSONFileAtomic: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "{\"a\":1}\n" {
		t.Fatalf("content=%q", string(b))
	}

	ents, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) != 1 {
		t.Fatalf("temp files left behind: %v", ents)
	}
}

func TestCheckOverwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "segments.csv")

	if err := CheckOverwrite(p, false); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := CheckOverwrite(p, false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("err=%v, want already exists", err)
	}
	if err := CheckOverwrite(p, true); err != nil {
		t.Fatalf("overwrite=true: %v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "```json\n{\"a\":1}\n```", want: "{\"a\":1}"},
		{in: "```JSON\n{}\n```", want: "{}"},
		{in: "```\n{}\n```  ", want: "{}"},
		{in: "  {} ", want: "{}"},
	}
	for _, tc := range cases {
		if got := StripCodeFences(tc.in); got != tc.want {
			t.Fatalf("StripCodeFences(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeModelJSON_ExtractsObjectFromWrappedText(t *testing.T) {
	t.Parallel()

	var out struct {
		A int `json:"a"`
	}
	if err := DecodeModelJSON("Here is the result:\n```json\n{\"a\": 2}\n```\nThanks", &out); err != nil {
		t.Fatalf("DecodeModelJSON: %v", err)
	}
	if out.A != 2 {
		t.Fatalf("A=%d", out.A)
	}
}

func TestDecodeModelJSON_InvalidObject(t *testing.T) {
	t.Parallel()

	var m map[string]any
	if err := DecodeModelJSON("```json\n{not valid json\n```", &m); err == nil {
		t.Fatalf("expected error")
	}
	if err := DecodeModelJSON("no braces here", &m); err == nil {
		t.Fatalf("expected error")
	}
	if err := DecodeModelJSON("null", &m); err == nil {
		t.Fatalf("expected error for a non-object value")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  abcdef ", 3); got != "abc…" {
		t.Fatalf("got=%q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("got=%q", got)
	}
}
