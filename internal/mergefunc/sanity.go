package mergefunc

import (
	"fmt"

	"funcmerge/internal/fcmp"
	"funcmerge/internal/ir"
)

// ViolationKind names the comparator property a violation breaks.
type ViolationKind uint8

const (
	NonSymmetric ViolationKind = iota + 1
	NonTransitive
)

func (k ViolationKind) String() string {
	switch k {
	case NonSymmetric:
		return "non-symmetric"
	case NonTransitive:
		return "non-transitive"
	default:
		return fmt.Sprintf("ViolationKind(%d)", k)
	}
}

// Violation is one inconsistent pair or triple.
type Violation struct {
	Kind ViolationKind
	// Triple is the running triple counter at the time of the failure.
	Triple int
	// Funcs names the two or three functions involved.
	Funcs []string
	// Results holds the comparisons that disagree: (F1,F2),(F2,F1) for
	// symmetry and (F1,F2),(F1,F3),(F2,F3) for transitivity.
	Results []fcmp.Ordering
}

func (v Violation) String() string {
	return fmt.Sprintf("%s; triple: %d; functions %v; results %v", v.Kind, v.Triple, v.Funcs, v.Results)
}

// SanityReport is the outcome of checking one batch.
type SanityReport struct {
	Checked    int
	Valid      bool
	Violations []Violation
}

// sanityCheck compares every pair and triple among the first limit
// functions of batch and reports where cmp is not a total order. The cost
// is cubic in limit.
func sanityCheck(batch []*ir.Func, limit int, cmp fcmp.Comparator, gn *fcmp.GlobalNumbers) SanityReport {
	n := min(limit, len(batch))
	rep := SanityReport{Checked: n, Valid: true}
	triple := 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			f1, f2 := batch[i], batch[j]
			res1 := cmp.Compare(f1, f2, gn)
			res2 := cmp.Compare(f2, f1, gn)
			if res1 != res2.Reverse() {
				rep.Valid = false
				rep.Violations = append(rep.Violations, Violation{
					Kind:    NonSymmetric,
					Triple:  triple,
					Funcs:   []string{f1.Name, f2.Name},
					Results: []fcmp.Ordering{res1, res2},
				})
			}
			if res1 == fcmp.Equal {
				continue
			}
			for k := j; k < n; k, triple = k+1, triple+1 {
				if k == j {
					continue
				}
				f3 := batch[k]
				res3 := cmp.Compare(f1, f3, gn)
				res4 := cmp.Compare(f2, f3, gn)

				transitive := true
				switch {
				case res1 != fcmp.Equal && res1 == res4:
					// F1 > F2, F2 > F3 => F1 > F3
					transitive = res3 == res1
				case res3 != fcmp.Equal && res3 == res4.Reverse():
					// F1 > F3, F3 > F2 => F1 > F2
					transitive = res3 == res1
				case res4 != fcmp.Equal && res3.Reverse() == res4:
					// F2 > F3, F3 > F1 => F2 > F1
					transitive = res4 == res1.Reverse()
				}
				if !transitive {
					rep.Valid = false
					rep.Violations = append(rep.Violations, Violation{
						Kind:    NonTransitive,
						Triple:  triple,
						Funcs:   []string{f1.Name, f2.Name, f3.Name},
						Results: []fcmp.Ordering{res1, res3, res4},
					})
				}
			}
		}
	}
	return rep
}
