package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"funcmerge/internal/config"
	"funcmerge/internal/ir"
	"funcmerge/internal/mergefunc"
	"funcmerge/internal/observ"
)

const dupModule = `define i32 @addA(i32 %a0, i32 %a1) {
bb0:
  %v0 = alloca i32, align 4
  store i32 %a0, i32* %v0, align 4
  %v1 = load i32, i32* %v0, align 4
  %v2 = add i32 %v1, %a1
  ret i32 %v2
}

define i32 @addB(i32 %a0, i32 %a1) {
bb0:
  br bb1
bb1:
  %v0 = alloca i32, align 4
  store i32 %a0, i32* %v0, align 4
  %v1 = load i32, i32* %v0, align 4
  %v2 = add i32 %v1, %a1
  ret i32 %v2
}

define i32 @single(i32 %a0) {
bb0:
  %v0 = mul i32 %a0, %a0
  ret i32 %v0
}
`

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) forFile(file string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.File == file {
			out = append(out, ev)
		}
	}
	return out
}

type memOutput struct {
	mu    sync.Mutex
	files map[string]*bytes.Buffer
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (o *memOutput) open(file string) (io.WriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.files == nil {
		o.files = make(map[string]*bytes.Buffer)
	}
	buf := &bytes.Buffer{}
	o.files[file] = buf
	return nopCloser{buf}, nil
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunMergesEveryFile(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "one.mf", dupModule),
		writeFile(t, dir, "two.mf", dupModule),
	}
	sink := &recordingSink{}
	out := &memOutput{}
	timer := observ.NewTimer()

	results, err := Run(context.Background(), &Request{
		Files:       files,
		Jobs:        2,
		SimplifyCFG: true,
		Format:      config.FormatText,
		Output:      out.open,
		Progress:    sink,
		Timer:       timer,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, res := range results {
		require.Equal(t, files[i], res.File)
		require.NoError(t, res.Err)
		require.True(t, res.Result.Changed, spew.Sdump(res))
		require.Equal(t, 1, res.Result.Stats.FunctionsMerged)
		require.Equal(t, 3, res.Before)
		require.Equal(t, 3, res.After, "the thunk replaces the merged body")

		m, err := ir.Parse(res.File, out.files[res.File].String())
		require.NoError(t, err)
		require.True(t, m.Func("addB").Blocks[0].Instrs[0].IsCallTo(m.Func("addA")))

		events := sink.forFile(res.File)
		require.Equal(t, StatusQueued, events[0].Status)
		last := events[len(events)-1]
		require.Equal(t, StatusDone, last.Status)
		var stages []Stage
		for _, ev := range events[1 : len(events)-1] {
			stages = append(stages, ev.Stage)
		}
		require.Equal(t, []Stage{StageLoad, StageValidate, StageSimplify, StageMerge, StageValidate, StageEmit}, stages)
	}

	rep := timer.Report()
	require.NotEmpty(t, rep.Stages)
	require.Equal(t, string(StageLoad), rep.Stages[0].Name)
}

func TestRunWithoutSimplifyKeepsBranchyDuplicateApart(t *testing.T) {
	path := writeFile(t, t.TempDir(), "one.mf", dupModule)
	results, err := Run(context.Background(), &Request{Files: []string{path}})
	require.NoError(t, err)
	require.False(t, results[0].Result.Changed, "block structure differs without simplification")
}

func TestRunReportsFailuresPerFile(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.mf", dupModule)
	bad := writeFile(t, dir, "bad.mf", "define i32 @f( {\n")
	missing := filepath.Join(dir, "missing.mf")
	sink := &recordingSink{}

	results, err := Run(context.Background(), &Request{
		Files:       []string{bad, good, missing},
		SimplifyCFG: true,
		Progress:    sink,
	})
	require.Error(t, err)
	require.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
	require.True(t, results[1].Result.Changed)
	require.ErrorContains(t, results[2].Err, "failed to read")

	events := sink.forFile(bad)
	last := events[len(events)-1]
	require.Equal(t, StatusError, last.Status)
	require.Equal(t, StageLoad, last.Stage)
}

type abortOutput struct {
	closed, aborted bool
}

func (o *abortOutput) Write(p []byte) (int, error) { return len(p), nil }
func (o *abortOutput) Close() error { o.closed = true; return nil }
func (o *abortOutput) Abort() error { o.aborted = true; return nil }

func TestRunAbortsOutputOnWriteFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "one.mf", dupModule)
	out := &abortOutput{}

	results, err := Run(context.Background(), &Request{
		Files:  []string{path},
		Format: "bitcode",
		Output: func(string) (io.WriteCloser, error) { return out, nil },
	})
	require.Error(t, err)
	require.ErrorContains(t, results[0].Err, "failed to write output")
	require.True(t, out.aborted)
	require.False(t, out.closed, "a failed write must not be committed")
}

func TestRunMsgpackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := ir.Parse("dup", dupModule)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, ir.Encode(&buf, m))
	path := writeFile(t, dir, "dup.mfb", buf.String())

	out := &memOutput{}
	results, err := Run(context.Background(), &Request{
		Files:       []string{path},
		SimplifyCFG: true,
		Merge:       mergefunc.Options{SanityCheckLimit: 4},
		Format:      config.FormatMsgpack,
		Output:      out.open,
	})
	require.NoError(t, err)
	require.True(t, results[0].Result.Changed)
	require.Len(t, results[0].Result.Sanity, 1)
	require.True(t, results[0].Result.Sanity[0].Valid)

	merged, err := ir.Decode(out.files[path])
	require.NoError(t, err)
	require.NoError(t, ir.Validate(merged))
	require.NotNil(t, merged.Func("addB"))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	path := writeFile(t, t.TempDir(), "one.mf", dupModule)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, &Request{Files: []string{path}})
	require.ErrorIs(t, err, context.Canceled)
}

const checkModule = `define i32 @addA(i32 %a0, i32 %a1) {
bb0:
  %v0 = add i32 %a0, %a1
  %v1 = mul i32 %v0, %a1
  ret i32 %v1
}

define i32 @addB(i32 %a0, i32 %a1) {
bb0:
  %v0 = add i32 %a0, %a1
  %v1 = mul i32 %v0, %a1
  ret i32 %v1
}

define i32 @addC(i32 %a0, i32 %a1) {
bb0:
  %v0 = add i32 %a0, 5
  %v1 = mul i32 %v0, %a1
  ret i32 %v1
}

define i32 @single(i32 %a0) {
bb0:
  %v0 = mul i32 %a0, %a0
  ret i32 %v0
}
`

func TestCheckReportsCandidates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "one.mf", checkModule)
	bad := writeFile(t, dir, "bad.mf", "@g = global i32 undefined_value\n")

	results, err := Check(context.Background(), []string{path, bad}, 1)
	require.Error(t, err)
	require.Len(t, results, 2)
	require.Error(t, results[1].Err)

	res := results[0]
	require.NoError(t, res.Err)
	require.Equal(t, 4, res.Functions)
	require.Equal(t, [][]string{{"addA", "addB", "addC"}}, res.Buckets)
	require.Equal(t, [][]string{{"addA", "addB"}}, res.Equal)
}

func TestOutputPathAndFormat(t *testing.T) {
	require.Equal(t, filepath.Join("out", "mod.mfb"), OutputPath("out", "in/mod.mf", config.FormatMsgpack))
	require.Equal(t, filepath.Join("out", "mod.mf"), OutputPath("out", "mod.mfb", config.FormatText))
	require.Equal(t, config.FormatMsgpack, FormatForPath("x.MFB", config.FormatText))
	require.Equal(t, config.FormatText, FormatForPath("x.txt", config.FormatText))
	require.Error(t, WriteModule(io.Discard, ir.NewModule("m", nil), "bitcode"))
}
