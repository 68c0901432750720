package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"funcmerge/internal/pipeline"
)

// step is how a working stage shows up for one file: its label and how far
// through the file it is once the stage starts.
type step struct {
	label string
	at    float64
}

var (
	loading     = step{"loading", 0.05}
	checking    = step{"checking", 0.2}
	simplifying = step{"simplifying", 0.3}
	merging     = step{"merging", 0.45}
	verifying   = step{"verifying", 0.8}
	writing     = step{"writing", 0.9}
)

// stepFor maps a stage to its step. Validation runs on both sides of the
// merge, so it depends on whether the file has been merged yet.
func stepFor(stage pipeline.Stage, merged bool) (step, bool) {
	switch stage {
	case pipeline.StageLoad:
		return loading, true
	case pipeline.StageValidate:
		if merged {
			return verifying, true
		}
		return checking, true
	case pipeline.StageSimplify:
		return simplifying, true
	case pipeline.StageMerge:
		return merging, true
	case pipeline.StageEmit:
		return writing, true
	}
	return step{}, false
}

type fileItem struct {
	path    string
	status  pipeline.Status
	step    step
	merged  bool
	frac    float64
	elapsed time.Duration
	err     error
}

// label is the text of the status column.
func (it *fileItem) label() string {
	if it.status == pipeline.StatusWorking {
		return it.step.label
	}
	return string(it.status)
}

func (it *fileItem) apply(ev pipeline.Event) {
	switch ev.Status {
	case pipeline.StatusQueued:
		it.status = ev.Status
	case pipeline.StatusWorking:
		st, ok := stepFor(ev.Stage, it.merged)
		if !ok {
			return
		}
		it.status, it.step = ev.Status, st
		it.frac = max(it.frac, st.at)
		if ev.Stage == pipeline.StageMerge {
			it.merged = true
		}
	case pipeline.StatusDone, pipeline.StatusError:
		it.status, it.err, it.elapsed = ev.Status, ev.Err, ev.Elapsed
		it.frac = 1
	}
}

func (it *fileItem) finished() bool {
	return it.status == pipeline.StatusDone || it.status == pipeline.StatusError
}

type progressModel struct {
	title   string
	events  <-chan pipeline.Event
	spinner spinner.Model
	prog    progress.Model
	items   []fileItem
	index   map[string]int
	width   int
	done    bool
}

type eventMsg pipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders one line per
// module file. It quits when events is closed.
func NewProgressModel(title string, files []string, events <-chan pipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]fileItem, len(files))
	index := make(map[string]int, len(files))
	for i, file := range files {
		items[i] = fileItem{path: file, status: pipeline.StatusQueued}
		index[file] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		var cmd tea.Cmd
		if idx, ok := m.index[msg.File]; ok {
			m.items[idx].apply(pipeline.Event(msg))
			cmd = m.prog.SetPercent(m.percent())
		}
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// counts returns how many files finished and how many of those failed.
func (m *progressModel) counts() (finished, failed int) {
	for i := range m.items {
		if m.items[i].finished() {
			finished++
		}
		if m.items[i].status == pipeline.StatusError {
			failed++
		}
	}
	return finished, failed
}

func (m *progressModel) header() string {
	finished, failed := m.counts()
	switch {
	case m.done && failed > 0:
		return fmt.Sprintf("finished with %d failed: %s", failed, m.title)
	case m.done:
		return fmt.Sprintf("done: %s", m.title)
	}
	return fmt.Sprintf("%s %s (%d/%d)", m.spinner.View(), m.title, finished, len(m.items))
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.header()))
	b.WriteString("\n\n")

	const statusWidth = 12
	nameWidth := max(m.width-statusWidth-4, 20)
	for i := range m.items {
		b.WriteString(m.line(&m.items[i], statusWidth, nameWidth))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

// line renders one file: status, name, then the time taken or the first
// line of the error once the file is finished.
func (m *progressModel) line(it *fileItem, statusWidth, nameWidth int) string {
	status := styleStatus(it.status).Render(fmt.Sprintf("%*s", statusWidth, it.label()))
	name := truncate(it.path, nameWidth)
	var tail string
	switch {
	case it.err != nil:
		msg, _, _ := strings.Cut(it.err.Error(), "\n")
		tail = "  " + truncate(msg, max(m.width-statusWidth-runewidth.StringWidth(name)-6, 10))
	case it.status == pipeline.StatusDone:
		tail = fmt.Sprintf("  %s", it.elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("  %s %s%s", status, name, tail)
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

// percent averages per-file progress.
func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for i := range m.items {
		total += m.items[i].frac
	}
	return total / float64(len(m.items))
}

func styleStatus(status pipeline.Status) lipgloss.Style {
	switch status {
	case pipeline.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case pipeline.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case pipeline.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
