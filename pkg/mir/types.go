package mir

import "strings"

// TypeKind classifies a Type coarsely. Analyses only need to tell primitive
// scalars apart from the pointer-carrying rest.
type TypeKind uint8

const (
	KindOpaque TypeKind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindComplex
	KindString
	KindUnit
	KindPointer
	KindUnsafePointer
	KindSlice
	KindArray
	KindMap
	KindChan
	KindFunc
	KindInterface
	KindStruct
	KindTuple
	KindNamed
	KindTypeParam
)

var kindNames = [...]string{
	KindOpaque:        "opaque",
	KindBool:          "bool",
	KindInt:           "int",
	KindUint:          "uint",
	KindFloat:         "float",
	KindComplex:       "complex",
	KindString:        "string",
	KindUnit:          "unit",
	KindPointer:       "pointer",
	KindUnsafePointer: "unsafe-pointer",
	KindSlice:         "slice",
	KindArray:         "array",
	KindMap:           "map",
	KindChan:          "chan",
	KindFunc:          "func",
	KindInterface:     "interface",
	KindStruct:        "struct",
	KindTuple:         "tuple",
	KindNamed:         "named",
	KindTypeParam:     "type-param",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "opaque"
}

// Type is the declared type of a local or a type argument.
type Type struct {
	Kind TypeKind
	Name string
}

func (t Type) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// IsPrimitive reports whether t is a scalar that can never carry a pointer.
func (t Type) IsPrimitive() bool {
	switch t.Kind {
	case KindBool, KindInt, KindUint, KindFloat, KindComplex:
		return true
	}
	return false
}

// UnitType is the type of the return place of bodies that return nothing.
var UnitType = Type{Kind: KindUnit, Name: "()"}

var basicKinds = map[string]TypeKind{
	"bool":       KindBool,
	"int":        KindInt,
	"int8":       KindInt,
	"int16":      KindInt,
	"int32":      KindInt,
	"int64":      KindInt,
	"rune":       KindInt,
	"uint":       KindUint,
	"uint8":      KindUint,
	"uint16":     KindUint,
	"uint32":     KindUint,
	"uint64":     KindUint,
	"uintptr":    KindUint,
	"byte":       KindUint,
	"float32":    KindFloat,
	"float64":    KindFloat,
	"complex64":  KindComplex,
	"complex128": KindComplex,
	"string":     KindString,
	"()":         KindUnit,
}

// ParseType classifies a Go-spelled type name.
func ParseType(name string) Type {
	name = strings.TrimSpace(name)
	if k, ok := basicKinds[name]; ok {
		return Type{Kind: k, Name: name}
	}

	var kind TypeKind
	switch {
	case name == "":
		return UnitType
	case name == "unsafe.Pointer":
		kind = KindUnsafePointer
	case strings.HasPrefix(name, "*"):
		kind = KindPointer
	case strings.HasPrefix(name, "[]"):
		kind = KindSlice
	case strings.HasPrefix(name, "["):
		kind = KindArray
	case strings.HasPrefix(name, "map["):
		kind = KindMap
	case strings.HasPrefix(name, "chan ") || strings.HasPrefix(name, "<-chan ") || strings.HasPrefix(name, "chan<- "):
		kind = KindChan
	case strings.HasPrefix(name, "func"):
		kind = KindFunc
	case strings.HasPrefix(name, "interface"), name == "any", name == "error":
		kind = KindInterface
	case strings.HasPrefix(name, "struct"):
		kind = KindStruct
	case strings.HasPrefix(name, "("):
		kind = KindTuple
	case len(name) == 1 && name[0] >= 'A' && name[0] <= 'Z':
		kind = KindTypeParam
	default:
		kind = KindNamed
	}
	return Type{Kind: kind, Name: name}
}

// TypeArgsKey renders type arguments into a stable map key.
func TypeArgsKey(args []Type) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	return b.String()
}
