package ir

import "fmt"

type BlockID int32
type InstrID int32
type ConstID int32

const (
	NoBlockID BlockID = -1
	NoInstrID InstrID = -1
	NoConstID ConstID = -1
)

// Linkage describes how a global symbol is resolved by a linker.
type Linkage uint8

const (
	LinkageExternal Linkage = iota
	LinkageAvailableExternally
	LinkageLinkOnceAny
	LinkageLinkOnceODR
	LinkageWeakAny
	LinkageWeakODR
	LinkageAppending
	LinkageInternal
	LinkagePrivate
	LinkageExternalWeak
	LinkageCommon
)

var linkageNames = [...]string{
	LinkageExternal:            "external",
	LinkageAvailableExternally: "available_externally",
	LinkageLinkOnceAny:         "linkonce",
	LinkageLinkOnceODR:         "linkonce_odr",
	LinkageWeakAny:             "weak",
	LinkageWeakODR:             "weak_odr",
	LinkageAppending:           "appending",
	LinkageInternal:            "internal",
	LinkagePrivate:             "private",
	LinkageExternalWeak:        "extern_weak",
	LinkageCommon:              "common",
}

func (l Linkage) String() string {
	if int(l) < len(linkageNames) {
		return linkageNames[l]
	}
	return fmt.Sprintf("Linkage(%d)", l)
}

// ParseLinkage maps a linkage keyword to its value.
func ParseLinkage(s string) (Linkage, bool) {
	for i, name := range linkageNames {
		if name == s {
			return Linkage(i), true //nolint:gosec // G115: bounded by table size
		}
	}
	return LinkageExternal, false
}

// IsInterposable reports whether a linker may replace the definition with a
// different one at link time.
func (l Linkage) IsInterposable() bool {
	switch l {
	case LinkageWeakAny, LinkageLinkOnceAny, LinkageCommon, LinkageExternalWeak:
		return true
	default:
		return false
	}
}

// IsLocal reports whether the symbol is invisible outside its module.
func (l Linkage) IsLocal() bool {
	return l == LinkageInternal || l == LinkagePrivate
}

// IsWeak reports weak (any or ODR) linkage.
func (l Linkage) IsWeak() bool {
	return l == LinkageWeakAny || l == LinkageWeakODR
}

// Visibility is the ELF-style symbol visibility.
type Visibility uint8

const (
	VisibilityDefault Visibility = iota
	VisibilityHidden
	VisibilityProtected
)

func (v Visibility) String() string {
	switch v {
	case VisibilityHidden:
		return "hidden"
	case VisibilityProtected:
		return "protected"
	default:
		return "default"
	}
}

// UnnamedAddr says whether the address of a global is significant.
type UnnamedAddr uint8

const (
	UnnamedAddrNone UnnamedAddr = iota
	UnnamedAddrLocal
	UnnamedAddrGlobal
)

func (u UnnamedAddr) String() string {
	switch u {
	case UnnamedAddrLocal:
		return "local_unnamed_addr"
	case UnnamedAddrGlobal:
		return "unnamed_addr"
	default:
		return ""
	}
}

// CallConv is a calling convention number.
type CallConv uint16

const (
	CallConvC    CallConv = 0
	CallConvFast CallConv = 8
	CallConvCold CallConv = 9
)

func (c CallConv) String() string {
	switch c {
	case CallConvC:
		return "ccc"
	case CallConvFast:
		return "fastcc"
	case CallConvCold:
		return "coldcc"
	default:
		return fmt.Sprintf("cc%d", uint16(c))
	}
}
