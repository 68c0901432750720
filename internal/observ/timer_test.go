package observ

import (
	"errors"
	"strings"
	"testing"
)

func TestTimerReportGroupsStages(t *testing.T) {
	tm := NewTimer()
	for range 2 {
		if err := tm.Track("load", func() error { return nil }); err != nil {
			t.Fatal(err)
		}
	}
	boom := errors.New("boom")
	if err := tm.Track("merge", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Track should return fn's error, got %v", err)
	}

	rep := tm.Report()
	if len(rep.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %+v", rep.Stages)
	}
	if rep.Stages[0].Name != "load" || rep.Stages[0].Count != 2 {
		t.Fatalf("unexpected first stage %+v", rep.Stages[0])
	}
	if rep.Stages[1].Name != "merge" || rep.Stages[1].Failed != 1 {
		t.Fatalf("unexpected second stage %+v", rep.Stages[1])
	}

	sum := tm.Summary()
	if !strings.Contains(sum, "1 failed") || !strings.HasSuffix(strings.TrimSpace(sum), "ms") {
		t.Fatalf("unexpected summary:\n%s", sum)
	}
}

func TestNilTimerTrackRunsFn(t *testing.T) {
	var tm *Timer
	ran := false
	if err := tm.Track("x", func() error { ran = true; return nil }); err != nil || !ran {
		t.Fatalf("nil timer should still run fn")
	}
	if rep := NewTimer().Report(); len(rep.Stages) != 0 {
		t.Fatalf("empty timer should report nothing")
	}
}
