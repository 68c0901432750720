package trace

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"
)

// StreamTracer writes each event as it arrives. Output is buffered; Flush
// and Close push it to the underlying writer.
type StreamTracer struct {
	mu     sync.Mutex
	dst    io.Writer
	w      *bufio.Writer
	level  Level
	format Format
	count  int // events written, for Chrome separators
	closed bool
}

// NewStreamTracer creates a StreamTracer writing to w. Chrome output is
// wrapped in a traceEvents document that Close terminates.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	t := &StreamTracer{dst: w, w: bufio.NewWriter(w), level: level, format: format}
	if format == FormatChrome {
		// write errors surface on Flush
		_, _ = t.w.WriteString("{\"traceEvents\":[\n")
	}
	return t
}

func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) && ev.Kind != KindHeartbeat {
		return
	}
	ev.Seq = NextSeq()
	data := FormatEvent(ev, t.format)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.format == FormatChrome && t.count > 0 {
		_, _ = t.w.WriteString(",\n")
	}
	t.count++
	_, _ = t.w.Write(data)
	// Heartbeats exist to show liveness; hold none back.
	if ev.Kind == KindHeartbeat {
		_ = t.w.Flush()
	}
}

func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Flush()
}

// Close terminates Chrome output, flushes, and closes the destination
// unless it is stdout or stderr. Later events are dropped.
func (t *StreamTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.format == FormatChrome {
		_, _ = t.w.WriteString("\n]}\n")
	}
	err := t.w.Flush()
	if t.dst == os.Stderr || t.dst == os.Stdout {
		return err
	}
	if closer, ok := t.dst.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}

func (t *StreamTracer) Level() Level { return t.level }

func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
