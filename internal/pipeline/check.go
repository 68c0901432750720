package pipeline

import (
	"context"
	"errors"
	"slices"

	"funcmerge/internal/fcmp"
	"funcmerge/internal/ir"
)

// CheckResult summarizes a module without changing it.
type CheckResult struct {
	File      string
	Functions int
	// Buckets lists groups of definitions sharing a structural hash, the
	// candidates a merge run would compare. Singletons are left out.
	Buckets [][]string
	// Equal lists groups the comparator considers identical.
	Equal [][]string
	Err   error
}

// Check loads and validates every file and reports merge candidates.
func Check(ctx context.Context, files []string, jobs int) ([]CheckResult, error) {
	results := make([]CheckResult, len(files))
	err := forEachFile(ctx, files, jobs, func(_ context.Context, i int, path string) {
		results[i] = checkFile(path)
	})
	errs := []error{err}
	for _, res := range results {
		errs = append(errs, res.Err)
	}
	return results, errors.Join(errs...)
}

func checkFile(path string) CheckResult {
	res := CheckResult{File: path}
	m, err := LoadModule(path)
	if err != nil {
		res.Err = err
		return res
	}
	if err := ir.Validate(m); err != nil {
		res.Err = err
		return res
	}
	defs := m.Definitions()
	res.Functions = len(defs)
	for _, bucket := range HashBuckets(defs) {
		res.Buckets = append(res.Buckets, funcNames(bucket))
		res.Equal = append(res.Equal, equalGroups(bucket)...)
	}
	return res
}

// HashBuckets groups fns by structural hash, keeping groups of two or more.
// Groups and their members keep the order of fns.
func HashBuckets(fns []*ir.Func) [][]*ir.Func {
	byHash := make(map[uint64][]*ir.Func)
	var order []uint64
	for _, f := range fns {
		h := fcmp.FunctionHash(f)
		if _, seen := byHash[h]; !seen {
			order = append(order, h)
		}
		byHash[h] = append(byHash[h], f)
	}
	var out [][]*ir.Func
	for _, h := range order {
		if len(byHash[h]) > 1 {
			out = append(out, byHash[h])
		}
	}
	return out
}

// equalGroups splits a hash bucket into classes of equal functions with
// more than one member.
func equalGroups(bucket []*ir.Func) [][]string {
	gn := fcmp.NewGlobalNumbers()
	var classes [][]*ir.Func
	for _, f := range bucket {
		i := slices.IndexFunc(classes, func(c []*ir.Func) bool {
			return fcmp.Structural{}.Compare(c[0], f, gn) == fcmp.Equal
		})
		if i < 0 {
			classes = append(classes, []*ir.Func{f})
			continue
		}
		classes[i] = append(classes[i], f)
	}
	var out [][]string
	for _, c := range classes {
		if len(c) > 1 {
			out = append(out, funcNames(c))
		}
	}
	return out
}

func funcNames(fns []*ir.Func) []string {
	names := make([]string, len(fns))
	for i, f := range fns {
		names[i] = f.Name
	}
	return names
}
