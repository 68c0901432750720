package mergefunc

import "strconv"

// Stats counts what a run did. The counters are diagnostic only.
type Stats struct {
	FunctionsMerged int
	ThunksWritten   int
	AliasesWritten  int
	// DoubleWeak counts merges of two interposable functions, each of which
	// created a new private body.
	DoubleWeak int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.FunctionsMerged += o.FunctionsMerged
	s.ThunksWritten += o.ThunksWritten
	s.AliasesWritten += o.AliasesWritten
	s.DoubleWeak += o.DoubleWeak
}

// Fields returns the counters as name/value pairs in a fixed order.
func (s Stats) Fields() [][2]string {
	return [][2]string{
		{"functions merged", strconv.Itoa(s.FunctionsMerged)},
		{"thunks written", strconv.Itoa(s.ThunksWritten)},
		{"aliases written", strconv.Itoa(s.AliasesWritten)},
		{"double weak", strconv.Itoa(s.DoubleWeak)},
	}
}

// Result reports the outcome of Merger.Run.
type Result struct {
	Changed bool
	Stats   Stats
	// Sanity holds one report per batch when the sanity check is enabled.
	Sanity []SanityReport
}
