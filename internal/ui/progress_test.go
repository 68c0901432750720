package ui

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"funcmerge/internal/pipeline"
)

func TestProgressModelTracksFiles(t *testing.T) {
	events := make(chan pipeline.Event)
	model := NewProgressModel("merging", []string{"a.mf", "b.mf"}, events).(*progressModel)

	model.Update(eventMsg(pipeline.Event{File: "a.mf", Stage: pipeline.StageMerge, Status: pipeline.StatusWorking}))
	model.Update(eventMsg(pipeline.Event{File: "b.mf", Stage: pipeline.StageLoad, Status: pipeline.StatusError, Err: errors.New("boom")}))
	model.Update(eventMsg(pipeline.Event{File: "unknown.mf", Stage: pipeline.StageLoad, Status: pipeline.StatusWorking}))

	if got := model.items[0].label(); got != "merging" {
		t.Fatalf("a.mf status = %q, want merging", got)
	}
	if got := model.items[1].label(); got != "error" {
		t.Fatalf("b.mf status = %q, want error", got)
	}
	if p := model.percent(); math.Abs(p-0.725) > 1e-9 {
		t.Fatalf("percent = %v", p)
	}

	model.Update(doneMsg{})
	view := model.View()
	if !strings.Contains(view, "finished with 1 failed") {
		t.Fatalf("view should report the failure:\n%s", view)
	}
	if !strings.Contains(view, "a.mf") || !strings.Contains(view, "b.mf") {
		t.Fatalf("view should list every file:\n%s", view)
	}
	if !strings.Contains(view, "boom") {
		t.Fatalf("view should show the error of b.mf:\n%s", view)
	}
}

func TestProgressValidationAfterMergeMovesForward(t *testing.T) {
	events := make(chan pipeline.Event)
	model := NewProgressModel("merging", []string{"a.mf"}, events).(*progressModel)

	stages := []pipeline.Stage{pipeline.StageLoad, pipeline.StageValidate, pipeline.StageMerge, pipeline.StageValidate}
	want := []string{"loading", "checking", "merging", "verifying"}
	last := 0.0
	for i, stage := range stages {
		model.Update(eventMsg(pipeline.Event{File: "a.mf", Stage: stage, Status: pipeline.StatusWorking}))
		if got := model.items[0].label(); got != want[i] {
			t.Fatalf("after %s: label %q, want %q", stage, got, want[i])
		}
		if p := model.percent(); p <= last {
			t.Fatalf("after %s: progress went from %v to %v", stage, last, p)
		} else {
			last = p
		}
	}
	if !strings.Contains(model.View(), "(0/1)") {
		t.Fatalf("header should count finished files:\n%s", model.View())
	}

	model.Update(eventMsg(pipeline.Event{File: "a.mf", Stage: pipeline.StageEmit, Status: pipeline.StatusDone, Elapsed: 1500 * time.Microsecond}))
	if model.percent() != 1 {
		t.Fatalf("finished file should be complete, got %v", model.percent())
	}
	if view := model.View(); !strings.Contains(view, "(1/1)") || !strings.Contains(view, "2ms") {
		t.Fatalf("view should count the file and show its time:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	got := truncate("internal/modules/very_long_name.mf", 12)
	if !strings.HasSuffix(got, "...") || runewidth.StringWidth(got) > 12 {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short.mf", 20); got != "short.mf" {
		t.Fatalf("truncate changed a short name: %q", got)
	}
}
