package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"funcmerge/internal/pipeline"
	"funcmerge/internal/ui"
)

type mergeOutcome struct {
	results []pipeline.FileResult
	err     error
}

func runMergeWithUI(ctx context.Context, title string, req *pipeline.Request) ([]pipeline.FileResult, error) {
	if req == nil {
		return nil, fmt.Errorf("missing pipeline request")
	}
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan mergeOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		results, err := pipeline.Run(ctx, &reqCopy)
		outcomeCh <- mergeOutcome{results: results, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, req.Files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
