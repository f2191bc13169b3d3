package typesys

import "fmt"

// TypeID uniquely identifies a type inside the universe.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// MethodID uniquely identifies a method inside the universe.
type MethodID uint32

// NoMethodID marks the absence of a method.
const NoMethodID MethodID = 0

// Kind enumerates the kinds of types the compiler hands to the runtime.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindClass
	KindStruct
	KindInterface
	KindArray
	KindPointer
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindClass:
		return "class"
	case KindStruct:
		return "struct"
	case KindInterface:
		return "interface"
	case KindArray:
		return "array"
	case KindPointer:
		return "pointer"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ParseKind maps the manifest spelling of a kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "class", "":
		return KindClass, true
	case "struct", "valuetype":
		return KindStruct, true
	case "interface":
		return KindInterface, true
	default:
		return KindInvalid, false
	}
}

// Type is the compiler-side description of a type.
type Type struct {
	Kind   Kind
	Name   string // fully qualified
	Module string
	Base   TypeID
	Elem   TypeID // arrays and pointers
	Rank   uint32 // arrays; 1 for single-dimensional

	// GenericArity is the number of type parameters of a generic type
	// definition. Instantiations carry Definition and Args instead.
	GenericArity int
	Definition   TypeID
	Args         []TypeID

	Interfaces []TypeID
}

// IsValueType reports whether values of the type are stored inline.
func (t Type) IsValueType() bool { return t.Kind == KindStruct }

// IsInstantiated reports whether t is a generic instantiation.
func (t Type) IsInstantiated() bool { return t.Definition != NoTypeID }

// IsGenericDefinition reports whether t is an uninstantiated generic type.
func (t Type) IsGenericDefinition() bool { return t.GenericArity > 0 && t.Definition == NoTypeID }

// Signature is the part of a method signature delegate creation depends on.
// Length counts declared parameters; the receiver of an instance method is
// not included.
type Signature struct {
	Length   int
	IsStatic bool
}

// Method describes a method and its owner.
type Method struct {
	Name      string
	Owner     TypeID
	Signature Signature
	Virtual   bool

	// Definition is the method on the generic type definition this method
	// was instantiated from.
	Definition MethodID
}

// WellKnownType names the types every universe is seeded with.
type WellKnownType uint8

const (
	WellKnownObject WellKnownType = iota
	WellKnownValueType
	WellKnownArray
	WellKnownDelegate
	WellKnownMulticastDelegate
	wellKnownCount
)

func (w WellKnownType) String() string {
	switch w {
	case WellKnownObject:
		return "System.Object"
	case WellKnownValueType:
		return "System.ValueType"
	case WellKnownArray:
		return "System.Array"
	case WellKnownDelegate:
		return "System.Delegate"
	case WellKnownMulticastDelegate:
		return "System.MulticastDelegate"
	default:
		return fmt.Sprintf("WellKnownType(%d)", w)
	}
}

// Names of the delegate constructors the runtime provides on System.Delegate.
const (
	InitializeClosedStaticThunk = "InitializeClosedStaticThunk"
	InitializeClosedInstance    = "InitializeClosedInstance"
)
