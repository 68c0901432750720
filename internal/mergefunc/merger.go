// Package mergefunc folds structurally identical functions of a module into
// one body. Superseded functions become aliases or tail-calling thunks, so
// every symbol and call site keeps working.
package mergefunc

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"funcmerge/internal/fcmp"
	"funcmerge/internal/ir"
	"funcmerge/internal/trace"
)

// Options configures a Merger.
type Options struct {
	// Comparator orders candidate functions. Defaults to fcmp.Structural.
	Comparator fcmp.Comparator
	// Target decides whether aliases may be emitted. Nil means no aliases.
	Target Target
	// SanityCheckLimit > 0 checks the comparator over that many worklist
	// entries before each batch.
	SanityCheckLimit int
}

// Merger runs function merging over modules. A Merger keeps no state between
// runs and may be used for several modules one after another.
type Merger struct {
	opts Options
}

// New returns a Merger with defaults filled in.
func New(opts Options) *Merger {
	if opts.Comparator == nil {
		opts.Comparator = fcmp.Structural{}
	}
	if opts.Target == nil {
		opts.Target = staticTarget(false)
	}
	return &Merger{opts: opts}
}

// run is the state of one Merger.Run.
type run struct {
	opts     Options
	m        *ir.Module
	gn       *fcmp.GlobalNumbers
	index    *CandidateIndex
	deferred *worklist
	rw       *rewriter
	stats    Stats
	tracer   trace.Tracer
}

// Run merges equal functions of m until nothing changes. It owns m for the
// duration of the call.
func (mg *Merger) Run(ctx context.Context, m *ir.Module) Result {
	r := &run{
		opts:     mg.opts,
		m:        m,
		gn:       fcmp.NewGlobalNumbers(),
		deferred: newWorklist(),
		tracer:   trace.FromContext(ctx),
	}
	r.index = NewCandidateIndex(mg.opts.Comparator, r.gn)
	r.rw = newRewriter(ctx, m, r.index, r.deferred, mg.opts.Target, &r.stats)

	span := trace.Begin(r.tracer, trace.ScopePass, "mergefunc", trace.CurrentSpan(ctx).SpanID)
	res := r.execute(span.ID())
	span.WithExtra("merged", strconv.Itoa(res.Stats.FunctionsMerged)).
		WithExtra("thunks", strconv.Itoa(res.Stats.ThunksWritten)).
		WithExtra("aliases", strconv.Itoa(res.Stats.AliasesWritten)).
		End(m.Name)
	return res
}

func (r *run) execute(parent uint64) Result {
	var res Result
	r.seed()

	for batchNo := 0; !r.deferred.empty(); batchNo++ {
		batch := r.deferred.drain()

		span := trace.Begin(r.tracer, trace.ScopeModule, "batch", parent)
		r.rw.parent = span.ID()

		if r.opts.SanityCheckLimit > 0 {
			rep := sanityCheck(batch, r.opts.SanityCheckLimit, r.opts.Comparator, r.gn)
			r.reportSanity(rep, span.ID())
			res.Sanity = append(res.Sanity, rep)
		}

		for _, f := range batch {
			if f.Erased() || !mergeable(f) || r.index.Contains(f) {
				continue
			}
			if r.insert(f) {
				res.Changed = true
			}
		}

		span.WithExtra("batch", strconv.Itoa(batchNo)).
			WithExtra("worklist", strconv.Itoa(len(batch))).
			WithExtra("index", strconv.Itoa(r.index.Len())).
			End("")
	}

	r.index.Clear()
	r.gn.Clear()
	res.Stats = r.stats
	return res
}

// mergeable reports whether f has a body this module owns.
func mergeable(f *ir.Func) bool {
	return !f.IsDeclaration() && f.Linkage != ir.LinkageAvailableExternally
}

type hashedFunc struct {
	hash uint64
	fn   *ir.Func
}

// seed queues every definition whose hash is shared with another one.
// Functions with a unique hash cannot equal anything and are never looked
// at again.
func (r *run) seed() {
	var hashed []hashedFunc
	for _, f := range r.m.Funcs {
		if mergeable(f) {
			hashed = append(hashed, hashedFunc{hash: fcmp.FunctionHash(f), fn: f})
		}
	}
	slices.SortStableFunc(hashed, func(a, b hashedFunc) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		}
		return 0
	})
	for i, h := range hashed {
		if (i > 0 && hashed[i-1].hash == h.hash) || (i+1 < len(hashed) && hashed[i+1].hash == h.hash) {
			r.deferred.push(h.fn)
		}
	}
}

// insert indexes f or merges it with the equal function already indexed.
// It reports whether the module changed.
func (r *run) insert(f *ir.Func) bool {
	inserted, match := r.index.Insert(f)
	if inserted {
		r.rw.note("inserted as unique", "@"+f.Name)
		return false
	}

	if blocks, instrs := ir.ReachableSize(f); blocks == 1 && instrs <= 2 {
		r.rw.note("too small to merge", "@"+f.Name)
		return false
	}

	if preferIncoming(match.Func(), f) {
		old := match.Func()
		r.index.ReplaceRepresentative(match, f)
		f = old
	}

	canonical := match.Func()
	r.rw.note("merged", fmt.Sprintf("@%s == @%s", canonical.Name, f.Name))
	r.rw.mergeTwoFunctions(canonical, f)
	return true
}

func (r *run) reportSanity(rep SanityReport, parent uint64) {
	for _, v := range rep.Violations {
		trace.Point(r.tracer, trace.ScopeNode, "sanity violation", v.String(), parent)
	}
	verdict := "passed"
	if !rep.Valid {
		verdict = "failed"
	}
	trace.Point(r.tracer, trace.ScopeModule, "sanity", fmt.Sprintf("%s for first %d functions", verdict, rep.Checked), parent)
}
