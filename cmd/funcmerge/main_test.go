package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"funcmerge/internal/config"
	"funcmerge/internal/mergefunc"
	"funcmerge/internal/pipeline"
	"funcmerge/internal/version"
)

func TestReadUIMode(t *testing.T) {
	cases := []struct {
		input string
		want  uiMode
	}{
		{"", uiModeAuto},
		{"AUTO", uiModeAuto},
		{" on ", uiModeOn},
		{"off", uiModeOff},
	}
	for _, tc := range cases {
		got, err := readUIMode(tc.input)
		if err != nil {
			t.Fatalf("readUIMode(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("readUIMode(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
	if _, err := readUIMode("fancy"); err == nil {
		t.Fatalf("expected error for unknown ui mode")
	}
	if shouldUseTUI(uiModeOn, true) {
		t.Fatalf("the progress view must not share stdout with module output")
	}
	if !shouldUseTUI(uiModeOn, false) || shouldUseTUI(uiModeOff, false) {
		t.Fatalf("explicit ui modes must be honored")
	}
}

func parseMergeFlags(t *testing.T, args ...string) (*cobra.Command, config.Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "merge"}
	addMergeFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v): %v", args, err)
	}
	cfg := config.Default()
	cfg.Merge.SanityCheck = 7
	err := applyMergeFlags(cmd, &cfg)
	return cmd, cfg, err
}

func TestApplyMergeFlagsOverridesConfig(t *testing.T) {
	_, cfg, err := parseMergeFlags(t, "--aliases", "--emit=msgpack", "--simplify-cfg")
	if err != nil {
		t.Fatalf("applyMergeFlags: %v", err)
	}
	if !cfg.Target.GlobalAliases || !cfg.Merge.SimplifyCFG || cfg.Output.Format != config.FormatMsgpack {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Merge.SanityCheck != 7 {
		t.Fatalf("unset --sanity must keep the file value, got %d", cfg.Merge.SanityCheck)
	}

	_, cfg, err = parseMergeFlags(t, "--sanity=0")
	if err != nil || cfg.Merge.SanityCheck != 0 {
		t.Fatalf("explicit --sanity=0 should disable the check: %v %+v", err, cfg)
	}
	if _, _, err := parseMergeFlags(t, "--sanity=-1"); err == nil {
		t.Fatalf("expected error for negative --sanity")
	}
	if _, _, err := parseMergeFlags(t, "--emit=bitcode"); err == nil {
		t.Fatalf("expected error for unknown --emit")
	}
}

func TestOutputForRejectsAmbiguousTargets(t *testing.T) {
	cmd := &cobra.Command{}
	dir := t.TempDir()

	if _, _, err := outputFor(cmd, []string{"a.mf"}, dir, true, config.FormatText); err == nil {
		t.Fatalf("--out-dir with --in-place must fail")
	}
	if _, _, err := outputFor(cmd, []string{"a.mf", "b.mf"}, "", false, config.FormatText); err == nil {
		t.Fatalf("several files cannot share stdout")
	}
	if _, _, err := outputFor(cmd, []string{"x/m.mf", "y/m.mfb"}, dir, false, config.FormatText); err == nil {
		t.Fatalf("colliding output names must fail")
	}
	if _, _, err := outputFor(cmd, []string{"m.mf"}, "", true, config.FormatMsgpack); err == nil {
		t.Fatalf("--in-place must not change the format of a file")
	}

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	open, toStdout, err := outputFor(cmd, []string{"m.mf"}, "", false, config.FormatText)
	if err != nil || !toStdout {
		t.Fatalf("single input should go to stdout: %v", err)
	}
	w, err := open("m.mf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w.Write([]byte("x"))
	if err := w.Close(); err != nil || buf.String() != "x" {
		t.Fatalf("stdout writer: %v %q", err, buf.String())
	}
}

func TestReplaceFileSwapsOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.mf")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := newReplaceFile(path)
	if err != nil {
		t.Fatalf("newReplaceFile: %v", err)
	}
	if _, err := f.WriteString("new"); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != "old" {
		t.Fatalf("file replaced before Close: %q", data)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "new" {
		t.Fatalf("file not replaced: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temporary file left behind: %v", entries)
	}
}

func TestReplaceFileAbortKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.mf")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := newReplaceFile(path)
	if err != nil {
		t.Fatalf("newReplaceFile: %v", err)
	}
	if _, err := f.WriteString("partial"); err != nil {
		t.Fatal(err)
	}
	if err := f.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "old" {
		t.Fatalf("aborted write replaced the file: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temporary file left behind: %v", entries)
	}
}

func summaryFixture() []pipeline.FileResult {
	return []pipeline.FileResult{
		{
			File:   "dir/a.mf",
			Before: 3,
			After:  3,
			Result: mergefunc.Result{Changed: true, Stats: mergefunc.Stats{FunctionsMerged: 1, ThunksWritten: 1}},
		},
		{File: "b.mf", Before: 2, After: 2},
		{File: "c.mf", Err: errors.New("c.mf:1:1: expected define")},
		{File: "d.mf", Before: 4, After: 3, Result: mergefunc.Result{Changed: true, Stats: mergefunc.Stats{FunctionsMerged: 1, AliasesWritten: 1}}},
	}
}

func TestSummaryRows(t *testing.T) {
	rows := summaryRows(summaryFixture())
	want := [][]string{
		{"dir/a.mf", "3", "1", "1", "0", "ok"},
		{"b.mf", "2", "0", "0", "0", "unchanged"},
		{"c.mf", "0", "0", "0", "0", "failed"},
		{"d.mf", "4 -> 3", "1", "0", "1", "ok"},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestRenderSummaryAligns(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, summaryFixture(), false)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header and 4 rows:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[0], "file      funcs   merged") {
		t.Fatalf("header not padded to the widest cell: %q", lines[0])
	}
	col := strings.Index(lines[0], "funcs")
	for _, line := range lines[1:] {
		if line[col-1] != ' ' || line[col] == ' ' {
			t.Fatalf("column misaligned in %q", line)
		}
	}
}

func TestRenderSanity(t *testing.T) {
	results := []pipeline.FileResult{{
		File: "m.mf",
		Result: mergefunc.Result{Sanity: []mergefunc.SanityReport{
			{Checked: 2, Valid: true},
			{Checked: 2, Violations: []mergefunc.Violation{{Kind: mergefunc.NonSymmetric, Funcs: []string{"a", "b"}}}},
		}},
	}}
	var buf bytes.Buffer
	renderSanity(&buf, results)
	if got := buf.String(); got != "m.mf: batch 1: non-symmetric comparison over a, b (triple 0)\n" {
		t.Fatalf("unexpected sanity output %q", got)
	}
}

func TestRenderCheckJSON(t *testing.T) {
	var buf bytes.Buffer
	err := renderCheckJSON(&buf, []pipeline.CheckResult{
		{File: "a.mf", Functions: 3, Buckets: [][]string{{"f", "g"}}, Equal: [][]string{{"f", "g"}}},
		{File: "b.mf", Err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("renderCheckJSON: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded[1]["error"] != "boom" {
		t.Fatalf("missing error: %v", decoded[1])
	}
	if buckets, ok := decoded[1]["buckets"].([]any); !ok || len(buckets) != 0 {
		t.Fatalf("empty buckets should encode as []: %v", decoded[1]["buckets"])
	}
}

func TestRenderCheckPretty(t *testing.T) {
	var buf bytes.Buffer
	renderCheckPretty(&buf, []pipeline.CheckResult{
		{File: "a.mf", Functions: 3, Buckets: [][]string{{"f", "g", "h"}}, Equal: [][]string{{"f", "g"}}},
	}, false)
	want := "a.mf: 3 functions, 1 hash buckets, 1 equal groups\n  bucket: @f @g @h\n  equal: @f @g\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestRenderVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	info := selectVersionFields(version.Info{Version: "1.2.3", BuildDate: "2026-10-01"}, versionFields{hash: true})
	if err := renderVersionJSON(&buf, info); err != nil {
		t.Fatalf("renderVersionJSON: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["tool"] != "funcmerge" || decoded["version"] != "1.2.3" || decoded["git_commit"] != "unknown" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if _, ok := decoded["build_date"]; ok {
		t.Fatalf("build date shown without --date: %v", decoded)
	}
}

func TestReadChoice(t *testing.T) {
	if f, err := readReportFormat(""); err != nil || f != reportPretty {
		t.Fatalf("empty format should default to pretty: %v %v", f, err)
	}
	if f, err := readReportFormat("JSON"); err != nil || f != reportJSON {
		t.Fatalf("readReportFormat(JSON) = %v, %v", f, err)
	}
	_, err := readReportFormat("yaml")
	if err == nil || !strings.Contains(err.Error(), "pretty|json") {
		t.Fatalf("error should list the choices: %v", err)
	}
}
