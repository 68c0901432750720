package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event. Smaller values are coarser; the
// level filter compares scopes numerically.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // one CLI command
	ScopePass                    // one file, one merge run
	ScopeModule                  // one worklist batch
	ScopeNode                    // one function decision
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeModule: "module",
	ScopeNode:   "node",
}

func (s Scope) String() string {
	if s > 0 && int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned by the tracer that stores the event
	Kind     Kind
	Scope    Scope
	SpanID   uint64 // zero for points and heartbeats
	ParentID uint64
	GID      uint64 // goroutine that emitted the event
	Name     string // "file", "mergefunc", "batch", "merged", ...
	Detail   string
	Extra    map[string]string
}

// clone copies ev including its Extra map, so stored events do not alias
// maps still owned by a live span.
func (ev *Event) clone() Event {
	out := *ev
	if ev.Extra != nil {
		out.Extra = make(map[string]string, len(ev.Extra))
		for k, v := range ev.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
