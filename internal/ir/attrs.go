package ir

import (
	"math/bits"
	"strings"
)

// Attr is a set of function, return or parameter attributes.
type Attr uint32

const (
	AttrNoUnwind Attr = 1 << iota
	AttrReadNone
	AttrReadOnly
	AttrNoInline
	AttrAlwaysInline
	AttrNoReturn
	AttrZExt
	AttrSExt
	AttrInReg
	AttrByVal
	AttrSRet
	AttrNoAlias
	AttrNonNull
	AttrNoCapture
	AttrReturned
)

var attrNames = [...]struct {
	attr Attr
	name string
}{
	{AttrNoUnwind, "nounwind"},
	{AttrReadNone, "readnone"},
	{AttrReadOnly, "readonly"},
	{AttrNoInline, "noinline"},
	{AttrAlwaysInline, "alwaysinline"},
	{AttrNoReturn, "noreturn"},
	{AttrZExt, "zeroext"},
	{AttrSExt, "signext"},
	{AttrInReg, "inreg"},
	{AttrByVal, "byval"},
	{AttrSRet, "sret"},
	{AttrNoAlias, "noalias"},
	{AttrNonNull, "nonnull"},
	{AttrNoCapture, "nocapture"},
	{AttrReturned, "returned"},
}

// ParseAttr maps an attribute keyword to its bit.
func ParseAttr(name string) (Attr, bool) {
	for _, a := range attrNames {
		if a.name == name {
			return a.attr, true
		}
	}
	return 0, false
}

// String returns the space-separated attribute keywords in canonical order.
func (a Attr) String() string {
	if a == 0 {
		return ""
	}
	parts := make([]string, 0, bits.OnesCount32(uint32(a)))
	for _, n := range attrNames {
		if a&n.attr != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// AttrList holds the attribute sets of a function or call site.
type AttrList struct {
	Fn     Attr
	Ret    Attr
	Params []Attr
}

// Param returns the attributes of parameter i.
func (l AttrList) Param(i int) Attr {
	if i < 0 || i >= len(l.Params) {
		return 0
	}
	return l.Params[i]
}

// AddParam merges a into the attributes of parameter i.
func (l *AttrList) AddParam(i int, a Attr) {
	if a == 0 || i < 0 {
		return
	}
	for len(l.Params) <= i {
		l.Params = append(l.Params, 0)
	}
	l.Params[i] |= a
}

// NumParams returns the number of parameter slots, ignoring trailing empty ones.
func (l AttrList) NumParams() int {
	n := len(l.Params)
	for n > 0 && l.Params[n-1] == 0 {
		n--
	}
	return n
}

// IsEmpty reports whether the list carries no attributes.
func (l AttrList) IsEmpty() bool {
	return l.Fn == 0 && l.Ret == 0 && l.NumParams() == 0
}

// Clone returns a deep copy of the list.
func (l AttrList) Clone() AttrList {
	out := AttrList{Fn: l.Fn, Ret: l.Ret}
	if n := l.NumParams(); n > 0 {
		out.Params = make([]Attr, n)
		copy(out.Params, l.Params[:n])
	}
	return out
}

// Equal compares two lists, treating missing parameter slots as empty.
func (l AttrList) Equal(o AttrList) bool {
	if l.Fn != o.Fn || l.Ret != o.Ret {
		return false
	}
	n := l.NumParams()
	if n != o.NumParams() {
		return false
	}
	for i := 0; i < n; i++ {
		if l.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}
