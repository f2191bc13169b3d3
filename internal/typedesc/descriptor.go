package typedesc

import (
	"aotrt/internal/contract"
	"aotrt/internal/layout"
)

// Descriptor is a read-only view of one type descriptor inside a Space.
// The zero Descriptor is the nil descriptor.
type Descriptor struct {
	space *Space
	addr  Addr
}

// Addr returns the descriptor address.
func (d Descriptor) Addr() Addr { return d.addr }

// Space returns the space the descriptor lives in.
func (d Descriptor) Space() *Space { return d.space }

// IsNil reports whether this is the nil descriptor.
func (d Descriptor) IsNil() bool { return d.addr == NoAddr }

// Name returns the symbol name, or the address when the descriptor is
// anonymous.
func (d Descriptor) Name() string {
	if d.IsNil() {
		return "<nil>"
	}
	if n, ok := d.space.NameOf(d.addr); ok {
		return n
	}
	return d.addr.String()
}

func (d Descriptor) mustBeValid(op string) {
	contract.Assert(!d.IsNil() && d.space != nil, op, "nil descriptor")
}

func (d Descriptor) at(off int) Addr { return d.addr + Addr(off) }

// Header fields ---------------------------------------------------------------

// Flags returns the raw header flags.
func (d Descriptor) Flags() Flags {
	d.mustBeValid("Flags")
	return Flags(d.space.u16(d.at(layout.OffFlags)))
}

// ComponentSize is the element size for arrays and strings, 0 otherwise.
func (d Descriptor) ComponentSize() uint16 {
	d.mustBeValid("ComponentSize")
	return d.space.u16(d.at(layout.OffComponentSize))
}

// BaseSize is the instance size. For parameterized types the same field
// holds the shape; see ParameterizedShape.
func (d Descriptor) BaseSize() uint32 {
	d.mustBeValid("BaseSize")
	return d.space.u32(d.at(layout.OffBaseSize))
}

// NumVTableSlots returns the number of vtable entries after the header.
func (d Descriptor) NumVTableSlots() uint16 {
	d.mustBeValid("NumVTableSlots")
	return d.space.u16(d.at(d.space.target.OffNumVTableSlots()))
}

// NumInterfaces returns the number of interface map entries.
func (d Descriptor) NumInterfaces() uint16 {
	d.mustBeValid("NumInterfaces")
	return d.space.u16(d.at(d.space.target.OffNumInterfaces()))
}

// HashCode returns the stable type identity hash.
func (d Descriptor) HashCode() uint32 {
	d.mustBeValid("HashCode")
	return d.space.u32(d.at(d.space.target.OffHashCode()))
}

// Classification ----------------------------------------------------------------

func (d Descriptor) Kind() Kind { return d.Flags().Kind() }

func (d Descriptor) IsCanonical() bool     { return d.Kind() == KindCanonical }
func (d Descriptor) IsCloned() bool        { return d.Kind() == KindCloned }
func (d Descriptor) IsParameterized() bool { return d.Kind() == KindParameterized }

func (d Descriptor) IsGenericTypeDefinition() bool {
	return d.Kind() == KindGenericTypeDefinition
}

func (d Descriptor) IsFinalizable() bool   { return d.Flags().Has(FlagHasFinalizer) }
func (d Descriptor) IsInterface() bool     { return d.Flags().Has(FlagIsInterface) }
func (d Descriptor) IsValueType() bool     { return d.Flags().Has(FlagIsValueType) }
func (d Descriptor) IsReferenceType() bool { return !d.IsValueType() }

// HasReferenceFields reports whether instances hold traced references.
func (d Descriptor) HasReferenceFields() bool { return d.Flags().Has(FlagHasPointers) }

func (d Descriptor) HasOptionalFields() bool  { return d.Flags().Has(FlagHasOptionalFields) }
func (d Descriptor) IsRuntimeAllocated() bool { return d.Flags().Has(FlagIsRuntimeAllocated) }
func (d Descriptor) IsGeneric() bool          { return d.Flags().Has(FlagIsGeneric) }

// HasGenericVariance applies to generic interfaces and delegates with co-
// or contra-variant parameters.
func (d Descriptor) HasGenericVariance() bool { return d.Flags().Has(FlagHasGenericVariance) }

func (d Descriptor) IsRelatedTypeViaIndirectionCell() bool {
	return d.Flags().Has(FlagRelatedTypeViaIndirectionCell)
}

// ElementType returns the packed element type tag.
func (d Descriptor) ElementType() ElementType { return d.Flags().ElementType() }

// ParameterizedShape is 0 for pointer types and non-zero for single
// dimensional arrays. Types with different shapes are never equivalent.
func (d Descriptor) ParameterizedShape() uint32 {
	contract.Assert(d.IsParameterized(), "ParameterizedShape", "%s is not parameterized", d.Name())
	return d.BaseSize()
}

// IsArray means "single dimensional array": only those are supported.
func (d Descriptor) IsArray() bool {
	return d.IsParameterized() && d.BaseSize() != 0
}

// IsPointerTypeDefinition reports whether d describes an unmanaged pointer.
func (d Descriptor) IsPointerTypeDefinition() bool {
	return d.IsParameterized() && d.BaseSize() == 0
}

// Related types ---------------------------------------------------------------

// RelatedType decodes the related-type field according to kind and the
// indirection flag.
func (d Descriptor) RelatedType() RelatedType {
	f := d.Flags()
	raw := d.space.ptr(d.at(layout.OffRelatedType))
	via := f.Has(FlagRelatedTypeViaIndirectionCell)
	switch f.Kind() {
	case KindCanonical, KindGenericTypeDefinition:
		if via {
			return BaseTypeIndirectCell{Cell: raw}
		}
		return BaseTypePointer{Target: raw}
	case KindCloned:
		contract.Assert(via, "RelatedType", "cloned %s must reach its canonical type through a cell", d.Name())
		return CanonicalIndirectCell{Cell: raw}
	default:
		if via {
			return ElementTypeIndirectCell{Cell: raw}
		}
		return ElementTypePointer{Target: raw}
	}
}

// CanonicalType returns the canonical descriptor of a cloned type.
func (d Descriptor) CanonicalType() Descriptor {
	contract.Assert(d.IsCloned(), "CanonicalType", "only cloned descriptors have canonical equivalents (%s is %v)", d.Name(), d.Kind())
	r, _ := d.RelatedType().(CanonicalIndirectCell)
	return d.space.Descriptor(r.Resolve(d.space))
}

// NonArrayBaseType returns the base type of a non-parameterized type. A
// cloned type answers with its canonical type's base.
func (d Descriptor) NonArrayBaseType() Descriptor {
	contract.Assert(!d.IsParameterized(), "NonArrayBaseType", "%s is parameterized; use ArrayBaseType", d.Name())
	if d.IsCloned() {
		canon := d.CanonicalType()
		contract.Assert(!canon.IsCloned(), "NonArrayBaseType", "%s clones another clone", d.Name())
		return canon.NonArrayBaseType()
	}
	contract.Assert(d.IsCanonical(), "NonArrayBaseType", "expected a canonical type, got %v", d.Kind())
	return d.space.Descriptor(d.RelatedType().Resolve(d.space))
}

// NonClonedNonArrayBaseType is NonArrayBaseType for callers that already
// hold a canonical type or a generic type definition.
func (d Descriptor) NonClonedNonArrayBaseType() Descriptor {
	contract.Assert(!d.IsParameterized(), "NonClonedNonArrayBaseType", "%s is parameterized", d.Name())
	contract.Assert(!d.IsCloned(), "NonClonedNonArrayBaseType", "%s is cloned", d.Name())
	return d.space.Descriptor(d.RelatedType().Resolve(d.space))
}

// BaseType returns the directly stored base pointer of a canonical type.
// It is only valid once the base has been wired directly.
func (d Descriptor) BaseType() Descriptor {
	contract.Assert(d.IsCanonical(), "BaseType", "expected a canonical type, got %v", d.Kind())
	contract.Assert(!d.IsRelatedTypeViaIndirectionCell(), "BaseType", "%s reaches its base through a cell", d.Name())
	r, _ := d.RelatedType().(BaseTypePointer)
	return d.space.Descriptor(r.Target)
}

// ArrayBaseType returns the common base of array types, which the runtime
// synthesizes instead of storing it in the descriptor.
func (d Descriptor) ArrayBaseType() Descriptor {
	contract.Assert(d.IsArray(), "ArrayBaseType", "%s is not an array", d.Name())
	if d.space.services == nil {
		return Descriptor{space: d.space}
	}
	return d.space.Descriptor(d.space.services.ArrayBaseType(d.addr))
}

// RelatedParameterType returns the element type of an array or pointer.
func (d Descriptor) RelatedParameterType() Descriptor {
	contract.Assert(d.IsParameterized(), "RelatedParameterType", "%s is not an array or pointer", d.Name())
	return d.space.Descriptor(d.RelatedType().Resolve(d.space))
}

// Trailing data ----------------------------------------------------------------

// VTableSlot returns entry i of the vtable.
func (d Descriptor) VTableSlot(i int) Addr {
	n := int(d.NumVTableSlots())
	contract.Assert(i >= 0 && i < n, "VTableSlot", "slot %d out of range [0,%d)", i, n)
	return d.space.ptr(d.at(d.space.target.HeaderSize() + i*d.space.ptrSize()))
}

func (d Descriptor) interfaceMapOffset() int {
	return d.space.target.HeaderSize() + int(d.NumVTableSlots())*d.space.ptrSize()
}

// InterfaceMap returns the interface entries that follow the vtable.
func (d Descriptor) InterfaceMap() []InterfaceEntry {
	n := int(d.NumInterfaces())
	if n == 0 {
		return nil
	}
	start := d.at(d.interfaceMapOffset())
	step := Addr(d.space.target.InterfaceEntrySize())
	out := make([]InterfaceEntry, n)
	for i := range out {
		out[i] = InterfaceEntry{space: d.space, addr: start + Addr(i)*step}
	}
	return out
}

func (d Descriptor) afterInterfaceMap() int {
	return d.interfaceMapOffset() + int(d.NumInterfaces())*d.space.target.InterfaceEntrySize()
}

// FinalizerEntryPoint returns the finalizer stored right after the
// interface map.
func (d Descriptor) FinalizerEntryPoint() Addr {
	contract.Assert(d.IsFinalizable(), "FinalizerEntryPoint", "%s is not finalizable", d.Name())
	return d.space.ptr(d.at(d.afterInterfaceMap()))
}

// OptionalFields decodes the optional fields blob.
func (d Descriptor) OptionalFields() (OptionalFields, error) {
	contract.Assert(d.HasOptionalFields(), "OptionalFields", "%s has no optional fields", d.Name())
	off := d.afterInterfaceMap()
	if d.IsFinalizable() {
		off += d.space.ptrSize()
	}
	blob := d.space.ptr(d.at(off))
	o, _, err := DecodeOptionalFields(d.space.tail(blob))
	return o, err
}

// Rare flags ------------------------------------------------------------------

// RareFlags returns the out-of-band flags from the runtime services.
func (d Descriptor) RareFlags() RareFlags {
	d.mustBeValid("RareFlags")
	return d.space.rareFlags(d.canonicalOrSelf().addr)
}

func (d Descriptor) HasCctor() bool { return d.RareFlags().Has(RareHasCctor) }

// IsNullable reports whether d is an instantiation of the nullable wrapper.
func (d Descriptor) IsNullable() bool { return d.RareFlags().Has(RareIsNullable) }

func (d Descriptor) SupportsCustomCastLogic() bool {
	return d.RareFlags().Has(RareSupportsCustomCastLogic)
}

// RequiresAlign8 is only meaningful on targets with 64-bit alignment rules.
func (d Descriptor) RequiresAlign8() bool {
	if !d.space.target.Align8 {
		return false
	}
	return d.RareFlags().Has(RareRequiresAlign8)
}

func (d Descriptor) IsDynamicType() bool { return d.RareFlags().Has(RareIsDynamicType) }

// NullableType returns the type wrapped by a nullable wrapper.
func (d Descriptor) NullableType() Descriptor {
	contract.Assert(d.IsNullable(), "NullableType", "%s is not nullable", d.Name())
	info, _ := d.space.services.Nullable(d.canonicalOrSelf().addr)
	return d.space.Descriptor(info.Type)
}

// NullableValueOffset returns where the value sits inside a nullable.
func (d Descriptor) NullableValueOffset() uint8 {
	contract.Assert(d.IsNullable(), "NullableValueOffset", "%s is not nullable", d.Name())
	info, _ := d.space.services.Nullable(d.canonicalOrSelf().addr)
	return info.ValueOffset
}
