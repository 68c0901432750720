// Package fcmp orders functions by structure. It provides the total order
// used to find mergeable functions, the hash that pre-partitions them, and
// the per-run numbering of globals both depend on.
package fcmp

import "cmp"

// Ordering is the result of a three-way comparison.
type Ordering int8

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "invalid"
	}
}

// Reverse swaps Less and Greater.
func (o Ordering) Reverse() Ordering {
	return -o
}

func cmpNum[T cmp.Ordered](l, r T) Ordering {
	return Ordering(cmp.Compare(l, r))
}

func cmpBool(l, r bool) Ordering {
	switch {
	case l == r:
		return Equal
	case r:
		return Less
	default:
		return Greater
	}
}
