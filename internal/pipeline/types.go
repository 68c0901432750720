package pipeline

import "time"

// Stage describes one step applied to a module file.
type Stage string

const (
	// StageLoad reads and parses or decodes the file.
	StageLoad Stage = "load"
	// StageValidate checks the module before and after merging.
	StageValidate Stage = "validate"
	// StageSimplify runs CFG simplification.
	StageSimplify Stage = "simplify"
	// StageMerge runs function merging.
	StageMerge Stage = "merge"
	// StageEmit writes the result.
	StageEmit Stage = "emit"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the file is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the file is in the given stage.
	StatusWorking Status = "working"
	// StatusDone indicates every stage finished.
	StatusDone Status = "done"
	// StatusError indicates a stage failed.
	StatusError Status = "error"
)

// Event reports progress for a file.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. OnEvent may be called from several
// goroutines at once.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

func emit(sink ProgressSink, ev Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(ev)
}

func emitQueued(sink ProgressSink, files []string) {
	for _, file := range files {
		emit(sink, Event{File: file, Stage: StageLoad, Status: StatusQueued})
	}
}
