package typedesc

import "fmt"

// Kind selects how a descriptor's related-type field and base size are
// interpreted. It occupies the low two bits of the header flags.
type Kind uint8

const (
	KindCanonical Kind = iota
	KindCloned
	KindParameterized
	KindGenericTypeDefinition
)

func (k Kind) String() string {
	switch k {
	case KindCanonical:
		return "canonical"
	case KindCloned:
		return "cloned"
	case KindParameterized:
		return "parameterized"
	case KindGenericTypeDefinition:
		return "generic-type-definition"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Flags is the 16-bit flags field of the descriptor header.
type Flags uint16

const (
	FlagKindMask                      Flags = 0x0003
	FlagRelatedTypeViaIndirectionCell Flags = 0x0004
	FlagIsInterface                   Flags = 0x0008
	FlagHasFinalizer                  Flags = 0x0010
	FlagHasPointers                   Flags = 0x0020
	FlagHasOptionalFields             Flags = 0x0040
	FlagIsValueType                   Flags = 0x0080
	FlagIsRuntimeAllocated            Flags = 0x0100
	FlagIsGeneric                     Flags = 0x0200
	FlagHasGenericVariance            Flags = 0x0400

	FlagElementTypeMask  Flags = 0xF800
	FlagElementTypeShift       = 11
)

// builderManaged are the bits the builder owns; specs may not set them.
const builderManaged = FlagKindMask | FlagRelatedTypeViaIndirectionCell | FlagHasOptionalFields | FlagElementTypeMask

// Kind extracts the descriptor kind.
func (f Flags) Kind() Kind { return Kind(f & FlagKindMask) }

// ElementType extracts the packed element type tag.
func (f Flags) ElementType() ElementType {
	return ElementType((f & FlagElementTypeMask) >> FlagElementTypeShift)
}

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

func makeFlags(kind Kind, attrs Flags, elem ElementType) Flags {
	f := attrs &^ builderManaged
	f |= Flags(kind) & FlagKindMask
	f |= (Flags(elem) << FlagElementTypeShift) & FlagElementTypeMask
	return f
}

// ElementType is the primitive classification tag packed into the flags.
// Values follow the runtime's element type numbering.
type ElementType uint8

const (
	ElemEnd         ElementType = 0x00
	ElemVoid        ElementType = 0x01
	ElemBoolean     ElementType = 0x02
	ElemChar        ElementType = 0x03
	ElemI1          ElementType = 0x04
	ElemU1          ElementType = 0x05
	ElemI2          ElementType = 0x06
	ElemU2          ElementType = 0x07
	ElemI4          ElementType = 0x08
	ElemU4          ElementType = 0x09
	ElemI8          ElementType = 0x0A
	ElemU8          ElementType = 0x0B
	ElemR4          ElementType = 0x0C
	ElemR8          ElementType = 0x0D
	ElemString      ElementType = 0x0E
	ElemPtr         ElementType = 0x0F
	ElemByRef       ElementType = 0x10
	ElemValueType   ElementType = 0x11
	ElemClass       ElementType = 0x12
	ElemVar         ElementType = 0x13
	ElemArray       ElementType = 0x14
	ElemGenericInst ElementType = 0x15
	ElemTypedByRef  ElementType = 0x16
	ElemI           ElementType = 0x18
	ElemU           ElementType = 0x19
	ElemFnPtr       ElementType = 0x1B
	ElemObject      ElementType = 0x1C
	ElemSzArray     ElementType = 0x1D
	ElemMVar        ElementType = 0x1E
)

var elementTypeNames = map[ElementType]string{
	ElemEnd: "end", ElemVoid: "void", ElemBoolean: "bool", ElemChar: "char",
	ElemI1: "i1", ElemU1: "u1", ElemI2: "i2", ElemU2: "u2", ElemI4: "i4", ElemU4: "u4",
	ElemI8: "i8", ElemU8: "u8", ElemR4: "r4", ElemR8: "r8", ElemString: "string",
	ElemPtr: "ptr", ElemByRef: "byref", ElemValueType: "valuetype", ElemClass: "class",
	ElemVar: "var", ElemArray: "array", ElemGenericInst: "genericinst",
	ElemTypedByRef: "typedbyref", ElemI: "i", ElemU: "u", ElemFnPtr: "fnptr",
	ElemObject: "object", ElemSzArray: "szarray", ElemMVar: "mvar",
}

func (e ElementType) String() string {
	if s, ok := elementTypeNames[e]; ok {
		return s
	}
	return fmt.Sprintf("ElementType(%#x)", uint8(e))
}

// ParseElementType maps the String form back to an ElementType.
func ParseElementType(s string) (ElementType, bool) {
	for k, v := range elementTypeNames {
		if v == s {
			return k, true
		}
	}
	return 0, false
}

// RareFlags are attributes kept out of the header, in the optional fields
// and the runtime side table.
type RareFlags uint32

const (
	RareHasCctor                RareFlags = 0x0001
	RareIsNullable              RareFlags = 0x0002
	RareSupportsCustomCastLogic RareFlags = 0x0004
	RareRequiresAlign8          RareFlags = 0x0008
	RareIsDynamicType           RareFlags = 0x0010
)

// Has reports whether every bit of mask is set.
func (r RareFlags) Has(mask RareFlags) bool { return r&mask == mask }
