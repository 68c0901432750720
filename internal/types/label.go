package types

import (
	"strconv"
	"strings"
)

// Label returns the textual IR spelling of a TypeID.
func Label(typesIn *Interner, id TypeID) string {
	var sb strings.Builder
	writeLabel(&sb, typesIn, id, 0)
	return sb.String()
}

func writeLabel(sb *strings.Builder, typesIn *Interner, id TypeID, depth int) {
	if id == NoTypeID || typesIn == nil {
		sb.WriteString("void")
		return
	}
	if depth > 32 {
		sb.WriteString("...")
		return
	}
	tt, ok := typesIn.Lookup(id)
	if !ok {
		sb.WriteString("?")
		return
	}
	switch tt.Kind {
	case KindVoid:
		sb.WriteString("void")
	case KindLabel:
		sb.WriteString("label")
	case KindInt:
		sb.WriteString("i")
		sb.WriteString(strconv.Itoa(int(tt.Width)))
	case KindFloat:
		switch tt.Width {
		case Width16:
			sb.WriteString("half")
		case Width32:
			sb.WriteString("float")
		default:
			sb.WriteString("double")
		}
	case KindPointer:
		writeLabel(sb, typesIn, tt.Elem, depth+1)
		if tt.AddrSpace != 0 {
			sb.WriteString(" addrspace(")
			sb.WriteString(strconv.FormatUint(uint64(tt.AddrSpace), 10))
			sb.WriteString(")")
		}
		sb.WriteString("*")
	case KindArray:
		sb.WriteString("[")
		sb.WriteString(strconv.FormatUint(uint64(tt.Count), 10))
		sb.WriteString(" x ")
		writeLabel(sb, typesIn, tt.Elem, depth+1)
		sb.WriteString("]")
	case KindStruct:
		if tt.Packed {
			sb.WriteString("<")
		}
		sb.WriteString("{")
		if info, ok := typesIn.StructInfo(id); ok {
			for i, e := range info.Elems {
				if i > 0 {
					sb.WriteString(", ")
				}
				writeLabel(sb, typesIn, e, depth+1)
			}
		}
		sb.WriteString("}")
		if tt.Packed {
			sb.WriteString(">")
		}
	case KindFn:
		info, ok := typesIn.FnInfo(id)
		if !ok {
			sb.WriteString("?")
			return
		}
		writeLabel(sb, typesIn, info.Result, depth+1)
		sb.WriteString(" (")
		for i, p := range info.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeLabel(sb, typesIn, p, depth+1)
		}
		if info.Variadic {
			if len(info.Params) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("...")
		}
		sb.WriteString(")")
	default:
		sb.WriteString("?")
	}
}
