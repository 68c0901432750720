// Package fuzztests holds fuzz harnesses for the module reader and the
// merge engine. They feed arbitrary text through ir.Parse and, for inputs
// that validate, through simplification, merging and the msgpack codec,
// checking that every step leaves a valid module and none of them hangs.
package fuzztests
